package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validResult() models.AnalysisResult {
	return models.AnalysisResult{
		Summary:      "Your landlord is raising the rent.",
		KeyPoints:    []string{"one", "two", "three", "four", "five"},
		KeyDates:     []string{"2026-11-01: new rent applies"},
		ComplexTerms: []models.ComplexTerm{{Term: "Indexation", Explanation: "Adjustment to inflation"}},
		Warning:      strPtr("Reply within 30 days"),
		Category:     models.CategoryHousing,
		SuggestedActions: []models.SuggestedAction{
			{Type: "reply", Label: "Contest", Description: "Write to the landlord"},
		},
		Pages: []models.Page{
			{PageNumber: 1, Summary: "Notice", ExtractedText: "Dear tenant"},
			{PageNumber: 2, Summary: "Annex", ExtractedText: "Table"},
		},
		ExtractedText: "Dear tenant\n\nTable",
		IsLegible:     true,
	}
}

func TestParseAnalysis_RoundTrip(t *testing.T) {
	want := validResult()
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := ParseAnalysis(string(raw), "")
	require.NoError(t, err)

	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	Stamp(got, "notice.pdf", "gemini-2.0-flash", at)
	want.FileName = "notice.pdf"
	want.ModelUsed = "gemini-2.0-flash"
	want.Timestamp = "2026-10-16T09:30:00Z"

	assert.Equal(t, want, *got)
}

func TestParseAnalysis_Permissive(t *testing.T) {
	raw := "Here you go:\n```json\n" + `{
		"summary": "Tax bill",
		"keyPoints": "first\nsecond",
		"complexTerms": {"VAT": "value added tax"},
		"regionalContext": "null",
		"warning": "None",
		"category": "TAXATION",
		"suggestedActions": ["Pay before Friday"],
		"pages": [
			{"pageNumber": "3", "summary": "c", "text": "page c"},
			{"pageNumber": 1, "summary": "a", "extractedText": "page a"},
			{"summary": "", "extractedText": ""}
		]
	}` + "\n```"

	got, err := ParseAnalysis(raw, "source text")
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, got.KeyPoints)
	assert.Equal(t, []string{}, got.KeyDates)
	assert.Equal(t, []models.ComplexTerm{{Term: "VAT", Explanation: "value added tax"}}, got.ComplexTerms)
	assert.Nil(t, got.RegionalContext)
	assert.Nil(t, got.Warning)
	assert.Equal(t, models.CategoryTaxation, got.Category)
	assert.Equal(t, []models.SuggestedAction{{Type: "info", Label: "Pay before Friday"}}, got.SuggestedActions)
	assert.True(t, got.IsLegible, "missing isLegible defaults to true")

	require.Len(t, got.Pages, 2)
	assert.Equal(t, 1, got.Pages[0].PageNumber)
	assert.Equal(t, "page a", got.Pages[0].ExtractedText)
	assert.Equal(t, 2, got.Pages[1].PageNumber)
	assert.Equal(t, "page c", got.Pages[1].ExtractedText)

	assert.Equal(t, "page a\n\npage c", got.ExtractedText)
}

func TestParseAnalysis_ExtractedTextFallbacks(t *testing.T) {
	got, err := ParseAnalysis(`{"summary":"short","keyPoints":["a"]}`, "  the source  ")
	require.NoError(t, err)
	assert.Empty(t, got.Pages)
	assert.Equal(t, "the source", got.ExtractedText)

	got, err = ParseAnalysis(`{"summary":"short","keyPoints":["a"]}`, "")
	require.NoError(t, err)
	assert.Equal(t, "short", got.ExtractedText)
}

func TestParseAnalysis_UnknownCategoryAndIllegible(t *testing.T) {
	got, err := ParseAnalysis(`{"category":"spaceflight","isLegible":"false","illegibleReason":"blurry"}`, "")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryOther, got.Category)
	assert.False(t, got.IsLegible)
	require.NotNil(t, got.IllegibleReason)
	assert.Equal(t, "blurry", *got.IllegibleReason)
}

func TestParseAnalysis_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"not json":   "I cannot help with that.",
		"array":      `["a"]`,
		"broken":     `{"summary": "x"`,
		"no content": `{"category":"legal"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAnalysis(raw, "")
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "analysis", pe.Task)
		})
	}
}

func TestParseDraft(t *testing.T) {
	got, err := ParseDraft(`{"draft":"Dear Sir,\nI dispute the fine.","chatResponse":"Done."}`)
	require.NoError(t, err)
	assert.Equal(t, "Dear Sir,\nI dispute the fine.", got.Draft)
	assert.Equal(t, "Done.", got.ChatResponse)
	assert.Equal(t, DefaultDisclaimer, got.Disclaimer)

	form, err := ParseDraft(`{"draft":["Name: Jane Doe","Tax ID: 123"],"disclaimer":"AI text"}`)
	require.NoError(t, err)
	assert.Equal(t, "Name: Jane Doe\nTax ID: 123", form.Draft)
	assert.Equal(t, "AI text", form.Disclaimer)

	answer, err := ParseDraft(`{"draft":"","chatResponse":"The deadline is Friday."}`)
	require.NoError(t, err)
	assert.Empty(t, answer.Draft)

	_, err = ParseDraft(`{"disclaimer":"only"}`)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "draft", pe.Task)
}

func TestSchemas(t *testing.T) {
	a := AnalysisSchema()
	assert.Equal(t, provider.TypeObject, a.Type)
	assert.Contains(t, a.Required, "extractedText")
	assert.Len(t, a.Properties["category"].Enum, len(models.Categories))
	assert.True(t, a.Properties["warning"].Nullable)

	d := DraftSchema()
	assert.ElementsMatch(t, []string{"draft", "disclaimer"}, d.Required)
}
