// Package provider wraps the generative backends behind one Adapter
// interface. Adapters make exactly one request per Invoke and never retry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Call is a single generation request.
type Call struct {
	// Instructions is the task prompt.
	Instructions string
	// Content is the document text; adapters truncate it to their cap.
	Content string
	// Image is an optional base64 payload (image or PDF).
	Image string
	// Schema describes the expected JSON output.
	Schema *Schema
}

// Adapter is a generative backend.
type Adapter interface {
	Name() string
	// Available is false when the adapter has no credential.
	Available() bool
	// Invoke returns raw JSON text.
	Invoke(ctx context.Context, call Call) (string, error)
}

// Error is a failed backend call.
type Error struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrMissingCredential is returned by Invoke on an adapter without an API key.
var ErrMissingCredential = errors.New("missing API credential")

func wrapErr(provider string, ctx context.Context, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{
		Provider: provider,
		Timeout:  errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
		Err:      err,
	}
}

// Truncate cuts s to at most max characters without splitting a rune.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
