package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name      string
	available bool
	out       string
	err       error
	delay     time.Duration

	mu    sync.Mutex
	calls []provider.Call
	log   *[]string
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) Available() bool { return f.available }

func (f *fakeAdapter) Invoke(ctx context.Context, call provider.Call) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	if f.log != nil {
		*f.log = append(*f.log, f.name)
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", &provider.Error{Provider: f.name, Timeout: true, Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return "", &provider.Error{Provider: f.name, Err: f.err}
	}
	return f.out, nil
}

func newPair(order *[]string) (*fakeAdapter, *fakeAdapter) {
	long := &fakeAdapter{name: "gemini", available: true, out: `{"from":"gemini"}`, log: order}
	fast := &fakeAdapter{name: "gpt", available: true, out: `{"from":"gpt"}`, log: order}
	return long, fast
}

func TestPolicy_Order(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  string
	}{
		{"short text prefers fast", Input{Task: TaskAnalysis, Call: provider.Call{Content: "hello"}}, "gpt"},
		{"image prefers long context", Input{Task: TaskAnalysis, Call: provider.Call{Image: "/9j/abc"}}, "gemini"},
		{"long text prefers long context", Input{Task: TaskAnalysis, Call: provider.Call{Content: strings.Repeat("a", LongTextThreshold+1)}}, "gemini"},
		{"threshold is exclusive", Input{Task: TaskDraft, Call: provider.Call{Content: strings.Repeat("a", LongTextThreshold)}}, "gpt"},
		{"form template prefers long context", Input{Task: TaskDraft, TemplateID: models.TemplateFormFilling}, "gemini"},
		{"form id ignored for analysis", Input{Task: TaskAnalysis, TemplateID: models.TemplateFormFilling}, "gpt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var order []string
			long, fast := newPair(&order)
			p := NewPolicy(long, fast, Config{}, nil, nil)

			out, err := p.Run(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, order)
			assert.Equal(t, tt.want, out.ModelUsed)
		})
	}
}

func TestPolicy_FallbackUsesSameCallOnce(t *testing.T) {
	var order []string
	long, fast := newPair(&order)
	fast.err = errors.New("rate limited")
	p := NewPolicy(long, fast, Config{}, nil, nil)

	call := provider.Call{Instructions: "explain", Content: "short doc"}
	out, err := p.Run(context.Background(), Input{Task: TaskAnalysis, Call: call})
	require.NoError(t, err)

	assert.Equal(t, []string{"gpt", "gemini"}, order)
	assert.Equal(t, "gemini (fallback)", out.ModelUsed)
	assert.Equal(t, `{"from":"gemini"}`, out.Raw)
	require.Len(t, long.calls, 1)
	assert.Equal(t, call, long.calls[0])
}

func TestPolicy_AggregateErrorCarriesBothMessages(t *testing.T) {
	long, fast := newPair(nil)
	long.err = errors.New("quota exhausted")
	fast.err = errors.New("bad gateway")
	p := NewPolicy(long, fast, Config{}, nil, nil)

	_, err := p.Run(context.Background(), Input{Task: TaskDraft, Call: provider.Call{Content: "x"}})
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Contains(t, err.Error(), "quota exhausted")
	assert.Contains(t, err.Error(), "bad gateway")
	assert.Len(t, agg.Messages(), 2)
	assert.Equal(t, "gpt: bad gateway", agg.Messages()[0])
}

func TestPolicy_ValidationFailureFallsBack(t *testing.T) {
	long, fast := newPair(nil)
	fast.out = "not json"
	p := NewPolicy(long, fast, Config{}, nil, nil)

	validate := func(raw string) error {
		if !json.Valid([]byte(raw)) {
			return errors.New("not JSON")
		}
		return nil
	}
	out, err := p.Run(context.Background(), Input{Task: TaskAnalysis, Call: provider.Call{Content: "x"}, Validate: validate})
	require.NoError(t, err)
	assert.Equal(t, "gemini (fallback)", out.ModelUsed)
}

func TestPolicy_UnavailableAdapterIsSkipped(t *testing.T) {
	long, fast := newPair(nil)
	fast.available = false
	p := NewPolicy(long, fast, Config{}, nil, nil)

	out, err := p.Run(context.Background(), Input{Task: TaskAnalysis, Call: provider.Call{Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "gemini", out.ModelUsed)
	assert.Empty(t, fast.calls)

	long.err = errors.New("down")
	_, err = p.Run(context.Background(), Input{Task: TaskAnalysis, Call: provider.Call{Content: "x"}})
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Attempts, 1)
}

func TestPolicy_NotConfigured(t *testing.T) {
	long, fast := newPair(nil)
	long.available, fast.available = false, false
	p := NewPolicy(long, fast, Config{}, nil, nil)

	assert.False(t, p.Configured())
	_, err := p.Run(context.Background(), Input{Call: provider.Call{Content: "x"}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	p = NewPolicy(nil, nil, Config{}, nil, nil)
	_, err = p.Run(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPolicy_TimeoutTriggersFallback(t *testing.T) {
	long, fast := newPair(nil)
	fast.delay = time.Second
	p := NewPolicy(long, fast, Config{Timeout: 20 * time.Millisecond}, nil, nil)

	out, err := p.Run(context.Background(), Input{Task: TaskAnalysis, Call: provider.Call{Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "gemini (fallback)", out.ModelUsed)
}

func TestPolicy_CancelledContextStops(t *testing.T) {
	long, fast := newPair(nil)
	p := NewPolicy(long, fast, Config{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, Input{Call: provider.Call{Content: "x"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fast.calls)
}

func TestPolicy_ImageScenario(t *testing.T) {
	jpeg := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3})

	var fastSawDataURL bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fastSawDataURL = strings.Contains(string(body), "data:image/jpeg;base64,"+jpeg)
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	long := &fakeAdapter{name: "gemini", available: true, err: errors.New("vision backend unavailable")}
	fast := provider.NewOpenAI(provider.OpenAIConfig{APIKey: "k", Model: "gpt", BaseURL: srv.URL}, nil)
	p := NewPolicy(long, fast, Config{}, nil, nil)

	_, err := p.Run(context.Background(), Input{
		Task: TaskAnalysis,
		Call: provider.Call{Instructions: "explain in English", Image: jpeg},
	})
	require.Error(t, err)

	require.Len(t, long.calls, 1)
	assert.Equal(t, jpeg, long.calls[0].Image)
	assert.True(t, fastSawDataURL, "fast adapter should receive the image as a data URL")
	assert.Contains(t, err.Error(), "vision backend unavailable")
	assert.Contains(t, err.Error(), "status 502")
}
