// Package extractor turns uploaded documents into plain text.
package extractor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	TypePDF  = "application/pdf"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeTXT  = "text/plain"
)

// ErrUnsupported is returned for content types with no extractor.
var ErrUnsupported = errors.New("unsupported file type")

// DetectContentType resolves an upload's type from its file extension,
// falling back to the declared header.
func DetectContentType(fileName, declared string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return TypePDF
	case ".docx":
		return TypeDOCX
	case ".txt", ".text", ".md":
		return TypeTXT
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}

	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case "application/vnd.openxmlformats-officedocument.wordprocessingml":
		return TypeDOCX
	case "text/txt", "application/txt", "application/x-txt":
		return TypeTXT
	}
	return declared
}

// IsImage reports whether contentType is an image the vision backend reads.
func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// Extract returns the text of data according to contentType.
func Extract(data []byte, contentType string) (string, error) {
	switch contentType {
	case TypePDF:
		return ExtractPDF(data)
	case TypeDOCX:
		return ExtractDOCX(data)
	case TypeTXT:
		return ExtractTXT(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, contentType)
	}
}
