package normalizer

import (
	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/provider"
)

// AnalysisSchema is the typed output contract for the analysis task.
func AnalysisSchema() *provider.Schema {
	categories := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		categories[i] = string(c)
	}

	return provider.Object(map[string]*provider.Schema{
		"summary":   provider.String("Plain-language summary of the whole document"),
		"keyPoints": provider.ArrayOf(provider.String(""), "At least five key points, more for long documents"),
		"keyDates":  provider.ArrayOf(provider.String(""), "Deadlines and dates with what they mean"),
		"complexTerms": provider.ArrayOf(provider.Object(map[string]*provider.Schema{
			"term":        provider.String(""),
			"explanation": provider.String(""),
		}, "term", "explanation"), "Jargon explained simply"),
		"regionalContext": provider.NullableString("Jurisdiction-specific notes"),
		"warning":         provider.NullableString("Urgent risk, if any"),
		"category": {
			Type:        provider.TypeString,
			Description: "Document category",
			Enum:        categories,
		},
		"suggestedActions": provider.ArrayOf(provider.Object(map[string]*provider.Schema{
			"type":        provider.String("reply, pay, call, visit, file or info"),
			"label":       provider.String(""),
			"description": provider.String(""),
		}, "type", "label"), "Next steps for the user"),
		"pages": provider.ArrayOf(provider.Object(map[string]*provider.Schema{
			"pageNumber":    provider.Integer("1-based page number"),
			"summary":       provider.String(""),
			"extractedText": provider.String("Full transcription of the page"),
		}, "pageNumber", "summary", "extractedText"), "Per-page breakdown for multi-page documents"),
		"extractedText":   provider.String("Full transcription of the document"),
		"isLegible":       provider.Boolean("False when the document cannot be read"),
		"illegibleReason": provider.NullableString("Why the document is not legible"),
	}, "summary", "keyPoints", "keyDates", "complexTerms", "category", "suggestedActions", "extractedText", "isLegible")
}

// DraftSchema is the typed output contract for the drafting task.
func DraftSchema() *provider.Schema {
	return provider.Object(map[string]*provider.Schema{
		"draft":        provider.String("The letter or form guide, written by the user"),
		"explanation":  provider.String("Why the draft is worded this way"),
		"chatResponse": provider.String("Short conversational reply or change summary"),
		"disclaimer":   provider.String("Short AI-generated content notice"),
	}, "draft", "disclaimer")
}
