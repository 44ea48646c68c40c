package models

import "strings"

type Tone string

const (
	ToneProfessional Tone = "Professional"
	ToneFriendly     Tone = "Friendly"
	ToneFirm         Tone = "Firm"
)

// ParseTone returns the matching tone, defaulting to ToneProfessional.
func ParseTone(s string) Tone {
	switch Tone(strings.TrimSpace(s)) {
	case ToneFriendly:
		return ToneFriendly
	case ToneFirm:
		return ToneFirm
	default:
		return ToneProfessional
	}
}

// Template ids understood by the drafting task.
const (
	TemplateFormFilling = "Form Filling Data"
	TemplateClarify     = "Clarify"
	TemplateDispute     = "Dispute"
	TemplateExtension   = "Extension"
	TemplateAccept      = "Accept"

	QuestionPrefix = "Question:"
)

// NamedTemplates are the goal ids a user can pick directly.
var NamedTemplates = []string{
	TemplateFormFilling, TemplateClarify, TemplateDispute, TemplateExtension, TemplateAccept,
}

// IsNamedTemplate reports whether id exactly matches a named goal.
func IsNamedTemplate(id string) bool {
	for _, t := range NamedTemplates {
		if t == id {
			return true
		}
	}
	return false
}

// QuestionText returns the freeform text of a "Question:<text>" template id.
func QuestionText(templateID string) (string, bool) {
	if !strings.HasPrefix(templateID, QuestionPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(templateID, QuestionPrefix)), true
}

type DraftRequest struct {
	ContextText  string `json:"context"`
	Tone         Tone   `json:"tone"`
	TemplateID   string `json:"template"`
	LanguageName string `json:"lang"`
	CurrentDraft string `json:"currentDraft,omitempty"`
}

type DraftResult struct {
	Draft        string `json:"draft"`
	Explanation  string `json:"explanation,omitempty"`
	ChatResponse string `json:"chatResponse,omitempty"`
	Disclaimer   string `json:"disclaimer"`
	ModelUsed    string `json:"modelUsed"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type TranscriptEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}
