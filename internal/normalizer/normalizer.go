// Package normalizer turns raw backend JSON into the canonical analysis and
// draft results. Both backends are accepted: one returns schema-typed JSON,
// the other only syntactic JSON, so decoding is permissive and every
// optional field has a default.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/models"
)

// DefaultDisclaimer is used when the backend omits one.
const DefaultDisclaimer = "This draft was generated by AI. Review it carefully before sending; it is not legal advice."

// ParseError reports backend output that is not usable JSON for the task.
type ParseError struct {
	Task string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s response: %v", e.Task, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type rawAnalysis struct {
	Summary          flexString  `json:"summary"`
	KeyPoints        flexStrings `json:"keyPoints"`
	KeyDates         flexStrings `json:"keyDates"`
	ComplexTerms     flexTerms   `json:"complexTerms"`
	RegionalContext  flexString  `json:"regionalContext"`
	Warning          flexString  `json:"warning"`
	Category         flexString  `json:"category"`
	SuggestedActions flexActions `json:"suggestedActions"`
	Pages            []rawPage   `json:"pages"`
	ExtractedText    flexString  `json:"extractedText"`
	IsLegible        flexBool    `json:"isLegible"`
	IllegibleReason  flexString  `json:"illegibleReason"`
}

// ParseAnalysis decodes an analysis response. source is the text that was
// sent to the backend; it backs extractedText when the backend returns none.
func ParseAnalysis(raw, source string) (*models.AnalysisResult, error) {
	var r rawAnalysis
	if err := decode(raw, &r); err != nil {
		return nil, &ParseError{Task: "analysis", Err: err}
	}

	result := &models.AnalysisResult{
		Summary:          r.Summary.String(),
		KeyPoints:        nonNil(r.KeyPoints),
		KeyDates:         nonNil(r.KeyDates),
		ComplexTerms:     r.ComplexTerms,
		RegionalContext:  r.RegionalContext.nullable(),
		Warning:          r.Warning.nullable(),
		Category:         models.ParseCategory(strings.ToLower(r.Category.String())),
		SuggestedActions: r.SuggestedActions,
		Pages:            normalizePages(r.Pages),
		ExtractedText:    r.ExtractedText.String(),
		IsLegible:        r.IsLegible.or(true),
		IllegibleReason:  r.IllegibleReason.nullable(),
	}
	if result.ComplexTerms == nil {
		result.ComplexTerms = []models.ComplexTerm{}
	}
	if result.SuggestedActions == nil {
		result.SuggestedActions = []models.SuggestedAction{}
	}

	if result.Summary == "" && len(result.KeyPoints) == 0 && result.IsLegible {
		return nil, &ParseError{Task: "analysis", Err: errors.New("response has neither summary nor key points")}
	}

	if result.ExtractedText == "" {
		result.ExtractedText = fallbackText(result.Pages, source, result.Summary)
	}
	return result, nil
}

type rawDraft struct {
	Draft        flexString `json:"draft"`
	Explanation  flexString `json:"explanation"`
	ChatResponse flexString `json:"chatResponse"`
	Disclaimer   flexString `json:"disclaimer"`
}

// ParseDraft decodes a drafting response. A form-filling answer may return
// the draft as a list; it is joined one entry per line.
func ParseDraft(raw string) (*models.DraftResult, error) {
	var r rawDraft
	if err := decode(raw, &r); err != nil {
		return nil, &ParseError{Task: "draft", Err: err}
	}

	result := &models.DraftResult{
		Draft:        r.Draft.String(),
		Explanation:  r.Explanation.String(),
		ChatResponse: r.ChatResponse.String(),
		Disclaimer:   r.Disclaimer.String(),
	}
	if result.Draft == "" && result.ChatResponse == "" && result.Explanation == "" {
		return nil, &ParseError{Task: "draft", Err: errors.New("response has neither draft nor chat response")}
	}
	if result.Disclaimer == "" {
		result.Disclaimer = DefaultDisclaimer
	}
	return result, nil
}

// Stamp sets the fields the backend never supplies.
func Stamp(r *models.AnalysisResult, fileName, modelUsed string, at time.Time) {
	r.FileName = fileName
	r.ModelUsed = modelUsed
	r.Timestamp = at.UTC().Format(time.RFC3339)
}

func decode(raw string, v any) error {
	content := strings.TrimSpace(extractJSON(raw))
	if content == "" {
		return errors.New("empty response")
	}
	if !strings.HasPrefix(content, "{") {
		return errors.New("response is not a JSON object")
	}
	return json.Unmarshal([]byte(content), v)
}

// extractJSON strips a markdown code fence and any prose around the
// outermost JSON object.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if nl := strings.Index(content, "\n"); nl >= 0 {
			content = content[nl+1:]
		}
		if end := strings.LastIndex(content, "```"); end >= 0 {
			content = content[:end]
		}
		content = strings.TrimSpace(content)
	}

	if !strings.HasPrefix(content, "{") {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start >= 0 && end > start {
			content = content[start : end+1]
		}
	}
	return content
}

// normalizePages sorts pages by their reported number and renumbers them
// 1..N. Empty pages are dropped.
func normalizePages(raw []rawPage) []models.Page {
	sorted := make([]rawPage, 0, len(raw))
	for _, p := range raw {
		if p.Summary.String() == "" && p.text() == "" {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return pageKey(sorted[i]) < pageKey(sorted[j])
	})

	pages := make([]models.Page, len(sorted))
	for i, p := range sorted {
		pages[i] = models.Page{
			PageNumber:    i + 1,
			Summary:       p.Summary.String(),
			ExtractedText: p.text(),
		}
	}
	return pages
}

// pages without a number keep their position after numbered ones
func pageKey(p rawPage) int {
	if n := p.number(); n > 0 {
		return n
	}
	return int(^uint(0) >> 1)
}

func fallbackText(pages []models.Page, source, summary string) string {
	var texts []string
	for _, p := range pages {
		if p.ExtractedText != "" {
			texts = append(texts, p.ExtractedText)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n\n")
	}
	if s := strings.TrimSpace(source); s != "" {
		return s
	}
	return summary
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
