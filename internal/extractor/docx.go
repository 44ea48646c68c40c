package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

type wordDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    struct {
		Paragraphs []paragraph `xml:"p"`
		Tables     []table     `xml:"tbl"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []struct {
		Text []string   `xml:"t"`
		Tabs []struct{} `xml:"tab"`
	} `xml:"r"`
}

type table struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []paragraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

func (p paragraph) text() string {
	var sb strings.Builder
	for _, run := range p.Runs {
		for range run.Tabs {
			sb.WriteByte('\t')
		}
		for _, t := range run.Text {
			sb.WriteString(t)
		}
	}
	return sb.String()
}

// ExtractDOCX returns the paragraph text of a Word document. Table rows are
// appended after the body paragraphs with cells separated by " | ".
func ExtractDOCX(data []byte) (string, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read DOCX as ZIP: %w", err)
	}

	var documentFile *zip.File
	for _, file := range zipReader.File {
		if file.Name == docxBody {
			documentFile = file
			break
		}
	}
	if documentFile == nil {
		return "", fmt.Errorf("%s not found in DOCX", docxBody)
	}

	xmlFile, err := documentFile.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", docxBody, err)
	}
	defer xmlFile.Close()

	xmlData, err := io.ReadAll(xmlFile)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", docxBody, err)
	}

	var doc wordDocument
	if err := xml.Unmarshal(xmlData, &doc); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", docxBody, err)
	}

	var lines []string
	for _, para := range doc.Body.Paragraphs {
		lines = append(lines, para.text())
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			var cells []string
			for _, cell := range row.Cells {
				var parts []string
				for _, para := range cell.Paragraphs {
					if t := strings.TrimSpace(para.text()); t != "" {
						parts = append(parts, t)
					}
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			lines = append(lines, strings.Join(cells, " | "))
		}
	}

	extractedText := strings.TrimSpace(strings.Join(lines, "\n"))
	if extractedText == "" {
		return "", fmt.Errorf("no text could be extracted from DOCX")
	}
	return extractedText, nil
}
