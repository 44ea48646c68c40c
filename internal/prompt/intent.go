package prompt

import (
	"strings"
	"unicode"
)

// SubstantialDraftChars is the length above which a draft counts as real
// content that later instructions must revise rather than replace.
const SubstantialDraftChars = 50

// Intent is what a freeform drafting utterance asks for.
type Intent int

const (
	// IntentAnswer answers the question without touching the draft.
	IntentAnswer Intent = iota
	// IntentGenerate writes a complete new draft.
	IntentGenerate
	// IntentRevise edits the existing draft.
	IntentRevise
)

func (i Intent) String() string {
	switch i {
	case IntentGenerate:
		return "generate"
	case IntentRevise:
		return "revise"
	default:
		return "answer"
	}
}

// Lexicon is the keyword policy used to detect that a user wants something
// written. Keywords are matched case-insensitively as word prefixes, so
// "write" also matches "writing" and "rédige" matches "rédiger".
type Lexicon struct {
	Keywords []string
}

// DefaultLexicon covers the languages the app ships translations for.
func DefaultLexicon() Lexicon {
	return Lexicon{Keywords: []string{
		// English
		"write", "draft", "email", "e-mail", "letter", "reply", "respond", "response", "answer them",
		"dispute", "contest", "appeal", "complain", "complaint", "extension", "extend", "postpone",
		"request", "ask for", "compose", "prepare a",
		// French
		"écri", "ecri", "rédige", "redige", "courrier", "lettre", "répond", "repond", "réponse", "reponse",
		"contester", "contestation", "réclamation", "reclamation", "délai", "delai", "prolongation", "demande",
		// German
		"schreib", "brief", "antwort", "widerspruch", "einspruch", "verlängerung", "verlangerung", "frist",
		// Spanish / Portuguese / Italian
		"escrib", "escrev", "scriv", "carta", "lettera", "respuesta", "resposta", "risposta",
		"reclamación", "reclamacion", "recurso", "prórroga", "prorroga", "proroga",
		// Dutch
		"schrijf", "bezwaar", "uitstel",
	}}
}

// WantsToWrite reports whether text asks for a document to be written.
func (l Lexicon) WantsToWrite(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range l.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if containsWordPrefix(lower, kw) {
			return true
		}
	}
	return false
}

// containsWordPrefix reports whether kw occurs in s starting at a word boundary.
func containsWordPrefix(s, kw string) bool {
	for offset := 0; offset < len(s); {
		idx := strings.Index(s[offset:], kw)
		if idx < 0 {
			return false
		}
		pos := offset + idx
		if pos == 0 || !isWordRune(lastRune(s[:pos])) {
			return true
		}
		offset = pos + len(kw)
	}
	return false
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return ' '
	}
	return r[len(r)-1]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// IsSubstantial reports whether draft has enough content to be revised.
func IsSubstantial(draft string) bool {
	return len([]rune(strings.TrimSpace(draft))) > SubstantialDraftChars
}

// Classify decides what a freeform utterance should do given the current draft.
// A substantial draft always puts the conversation in revision mode.
func Classify(lex Lexicon, utterance, currentDraft string) Intent {
	if IsSubstantial(currentDraft) {
		return IntentRevise
	}
	if lex.WantsToWrite(utterance) {
		return IntentGenerate
	}
	return IntentAnswer
}
