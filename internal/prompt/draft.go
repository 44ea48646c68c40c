package prompt

import (
	"fmt"
	"strings"

	"github.com/DocExplain/DocExplain-app/internal/models"
)

const draftRole = `You are DocuMate, a helpful assistant that writes replies to official documents on behalf of ordinary people.`

const authorshipRule = `AUTHORSHIP (never break this rule): the user is ALWAYS the author and sender of the draft and writes in the first person ("I", "my"). ` +
	`The organisation or person who sent the original document (administration, company, landlord, employer, court) is ALWAYS the recipient. ` +
	`Never write as if you were that organisation replying to the user.`

const draftOutputKeys = `Return ONLY a JSON object with these keys:
- "draft": the text the user will send (or, for forms, the structured list of fields).
- "explanation": a very simple, plain-language explanation of what the draft says and why.
- "chatResponse": a short conversational reply to the user (one or two sentences).
- "disclaimer": a standard reminder that this text is AI-generated and should be checked before sending.`

var templateInstructions = map[string]string{
	models.TemplateFormFilling: `Task: help the user fill in the form described in the document. Instead of a letter, produce a structured list of every field ` +
		`the form requests, grouped by section, with the value found in the document next to each field. Mark fields whose value is ` +
		`not in the document as "[to complete]" and say briefly what belongs there.`,
	models.TemplateClarify: `Task: write a request for clarification. Politely state which parts of the document are unclear, quote the references ` +
		`(file number, dates, amounts) and ask precise questions.`,
	models.TemplateDispute: `Task: write a formal dispute of the document. State the reference, explain clearly why the user disagrees, cite the ` +
		`facts from the document, and request a review or correction. Mention any applicable right to appeal.`,
	models.TemplateExtension: `Task: write a request for a deadline extension. Reference the document and the current deadline, give a brief ` +
		`reason, propose a new date and thank the recipient.`,
}

// DraftOptions describes one drafting call.
type DraftOptions struct {
	TemplateID   string
	Tone         models.Tone
	LanguageName string
	CurrentDraft string
	// ForceGenerate makes a freeform question produce a full draft
	// regardless of the lexicon. Used for the opening turn of a session.
	ForceGenerate bool
}

// Builder assembles prompts. Its Lexicon decides freeform intents and can be
// swapped without touching the prompt text.
type Builder struct {
	Lexicon Lexicon
}

func NewBuilder() *Builder {
	return &Builder{Lexicon: DefaultLexicon()}
}

// Analysis is BuildAnalysisPrompt.
func (b *Builder) Analysis(languageName, country, region string) string {
	return BuildAnalysisPrompt(languageName, country, region)
}

// DraftIntent returns what a drafting call will do. Named templates and
// unknown ids always generate.
func (b *Builder) DraftIntent(opts DraftOptions) Intent {
	question, ok := models.QuestionText(opts.TemplateID)
	if !ok || opts.ForceGenerate {
		return IntentGenerate
	}
	return Classify(b.Lexicon, question, opts.CurrentDraft)
}

// Draft returns the instruction text for a drafting call and its intent.
func (b *Builder) Draft(opts DraftOptions) (string, Intent) {
	intent := b.DraftIntent(opts)
	tone := models.ParseTone(string(opts.Tone))

	var sb strings.Builder
	sb.WriteString(draftRole)
	sb.WriteString("\n\n")

	if question, ok := models.QuestionText(opts.TemplateID); ok {
		sb.WriteString(questionInstruction(question, intent, tone))
	} else if instr, ok := templateInstructions[opts.TemplateID]; ok {
		sb.WriteString(instr)
		sb.WriteString(fmt.Sprintf("\nTone: %s.", tone))
	} else {
		sb.WriteString(genericInstruction(opts.TemplateID, tone))
	}

	if intent == IntentRevise {
		sb.WriteString("\n\nCURRENT DRAFT (edit this text, do not start over):\n\"\"\"\n")
		sb.WriteString(strings.TrimSpace(opts.CurrentDraft))
		sb.WriteString("\n\"\"\"")
	}

	sb.WriteString("\n\n")
	sb.WriteString(authorshipRule)
	sb.WriteString("\n\n")
	sb.WriteString(languageClause(opts.LanguageName))
	sb.WriteString("\n\n")
	sb.WriteString(draftOutputKeys)
	return sb.String(), intent
}

// BuildDraftPrompt builds a drafting prompt with the default lexicon.
func BuildDraftPrompt(templateID string, tone models.Tone, languageName, currentDraft string) string {
	p, _ := NewBuilder().Draft(DraftOptions{
		TemplateID:   templateID,
		Tone:         tone,
		LanguageName: languageName,
		CurrentDraft: currentDraft,
	})
	return p
}

func genericInstruction(templateID string, tone models.Tone) string {
	goal := strings.TrimSpace(templateID)
	if goal == "" {
		goal = "this document"
	}
	return fmt.Sprintf("Task: format a professional reply for %s. Write a complete, ready-to-send response to the document.\nTone: %s.", goal, tone)
}

func questionInstruction(question string, intent Intent, tone models.Tone) string {
	switch intent {
	case IntentRevise:
		return fmt.Sprintf(`REVISION MODE. The user has an existing draft (below) and asks: %q
Treat this as an edit request against the existing draft:
- Apply the requested change and return the complete updated text in "draft".
- Preserve all factual data: names, dates, amounts, reference numbers, addresses.
- Keep everything the user did not ask to change.
- Put a one-sentence summary of what you changed in "chatResponse".
- Never ask for permission, never ask clarifying questions, never add a preamble such as "Here is your draft".
Tone: %s.`, question, tone)
	case IntentGenerate:
		return fmt.Sprintf(`The user asks: %q
They want a document written. Immediately produce the full draft in "draft" using the document context. Do not ask clarifying questions; `+
			`use placeholders like [your name] for missing personal details. Put a short confirmation in "chatResponse".
Tone: %s.`, question, tone)
	default:
		return fmt.Sprintf(`The user asks a question about the document: %q
Answer it clearly and briefly in "chatResponse". Do not write a letter; leave "draft" empty.`, question)
	}
}
