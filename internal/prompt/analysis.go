// Package prompt builds the instruction text sent to the generative backends
// for the analysis and drafting tasks.
package prompt

import (
	"fmt"
	"strings"

	"github.com/DocExplain/DocExplain-app/internal/models"
)

const defaultLanguage = "English"

const analysisInstructions = `You are DocuMate, an expert assistant that explains official documents (letters from administrations, employers, landlords, banks, insurers, courts, schools) to ordinary people.

Rules:
- Use plain language a 12-year-old could follow. Define any jargon you cannot avoid.
- Never invent facts, amounts, names or dates that are not in the document.
- If the document is unreadable (blurred, cropped, empty), set "isLegible" to false and explain why in "illegibleReason".
- Transcribe the document faithfully in "extractedText". For multi-page documents also fill "pages", one entry per page, numbered from 1 without gaps.

Return ONLY a JSON object with these keys:
- "summary": 2-3 sentences explaining what the document is and what it asks of the reader.
- "keyPoints": array of at least 5 short key points (more for long documents).
- "keyDates": array of deadlines and important dates, each with what happens on that date.
- "complexTerms": array of {"term", "explanation"} for technical or legal wording.
- "regionalContext": how the rules of the user's jurisdiction apply, or null.
- "warning": potential risks, penalties or scam indicators, or null if none.
- "category": one of %s.
- "suggestedActions": array of {"type", "label", "description"}; "type" is one of pay, fill, dispute, clarify, extension, ignore.
- "pages": array of {"pageNumber", "summary", "extractedText"}, empty for single-page documents.
- "extractedText": full transcription of the document.
- "isLegible": boolean.
- "illegibleReason": string or null.`

// BuildAnalysisPrompt returns the instruction text for the analysis task,
// pinned to languageName and the user's jurisdiction.
func BuildAnalysisPrompt(languageName, country, region string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(analysisInstructions, categoryList()))
	b.WriteString("\n\n")
	b.WriteString(languageClause(languageName))
	b.WriteString("\n")
	b.WriteString(jurisdictionClause(country, region))
	return b.String()
}

func categoryList() string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func languageClause(languageName string) string {
	lang := strings.TrimSpace(languageName)
	if lang == "" {
		lang = defaultLanguage
	}
	return fmt.Sprintf("IMPORTANT: The user's language is %s. ALL text values in the JSON output MUST be written in %s, "+
		"even when the document itself is in another language. JSON keys and enum values stay in English.", lang, lang)
}

func jurisdictionClause(country, region string) string {
	country = strings.TrimSpace(country)
	region = strings.TrimSpace(region)

	var where string
	switch {
	case country != "" && region != "":
		where = fmt.Sprintf("%s (%s)", country, region)
	case country != "":
		where = country
	case region != "":
		where = region
	default:
		where = "the user's country"
	}
	return fmt.Sprintf("Jurisdiction: interpret deadlines, rights and obligations under the rules of %s. "+
		"Put jurisdiction-specific advice in \"regionalContext\".", where)
}
