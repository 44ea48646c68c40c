package extractor

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var boms = []struct {
	prefix  []byte
	decoder func() *encoding.Decoder
}{
	{[]byte{0xEF, 0xBB, 0xBF}, func() *encoding.Decoder { return unicode.UTF8BOM.NewDecoder() }},
	{[]byte{0xFF, 0xFE}, func() *encoding.Decoder {
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	}},
	{[]byte{0xFE, 0xFF}, func() *encoding.Decoder {
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
	}},
}

// ExtractTXT decodes a plain text upload. UTF-8 and BOM-marked UTF-16 are
// read as is; anything else is treated as Windows-1252.
func ExtractTXT(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty text file")
	}

	text, err := decodeText(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode text file: %w", err)
	}
	if looksBinary(text) {
		return "", fmt.Errorf("file does not appear to be valid text")
	}

	text = cleanText(text)
	if text == "" {
		return "", fmt.Errorf("no text could be extracted from file")
	}
	return text, nil
}

func decodeText(data []byte) (string, error) {
	for _, bom := range boms {
		if bytes.HasPrefix(data, bom.prefix) {
			decoded, _, err := transform.Bytes(bom.decoder(), data)
			if err != nil {
				return "", err
			}
			return string(decoded), nil
		}
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// looksBinary samples the start of text for control characters other
// than common whitespace.
func looksBinary(text string) bool {
	const sampleSize = 512

	total, control := 0, 0
	for _, r := range text {
		if total == sampleSize {
			break
		}
		total++
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' && r != '\f' {
			control++
		}
	}
	return total > 0 && float64(control)/float64(total) > 0.2
}

func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
