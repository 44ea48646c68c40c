package provider

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	MediaJPEG = "image/jpeg"
	MediaPNG  = "image/png"
	MediaGIF  = "image/gif"
	MediaWEBP = "image/webp"
	MediaPDF  = "application/pdf"
)

// base64 prefixes of the file signatures we recognise.
var mediaSignatures = []struct {
	prefix string
	media  string
}{
	{"/9j/", MediaJPEG},
	{"iVBOR", MediaPNG},
	{"JVBER", MediaPDF},
	{"R0lGOD", MediaGIF},
	{"UklGR", MediaWEBP},
}

// DetectMediaType infers the media type of a base64 payload from its first
// bytes, defaulting to JPEG.
func DetectMediaType(b64 string) string {
	b64 = StripDataURL(b64)
	for _, sig := range mediaSignatures {
		if strings.HasPrefix(b64, sig.prefix) {
			return sig.media
		}
	}
	return MediaJPEG
}

// StripDataURL removes a "data:<mime>;base64," prefix if present.
func StripDataURL(b64 string) string {
	b64 = strings.TrimSpace(b64)
	if strings.HasPrefix(b64, "data:") {
		if idx := strings.Index(b64, ","); idx >= 0 {
			return b64[idx+1:]
		}
	}
	return b64
}

// DataURL re-encodes a base64 payload as a data URL image reference.
func DataURL(b64 string) string {
	b64 = StripDataURL(b64)
	return fmt.Sprintf("data:%s;base64,%s", DetectMediaType(b64), b64)
}

// DecodeBase64 decodes standard or raw base64, tolerating a data URL prefix
// and embedded whitespace.
func DecodeBase64(b64 string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, StripDataURL(b64))

	data, err := base64.StdEncoding.DecodeString(clean)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(clean); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("invalid base64 payload: %w", err)
}
