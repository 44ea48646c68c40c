// Package drafting holds the draft-and-revise conversation for one document.
package drafting

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/prompt"
)

// FailureMessage is the chat response shown when a turn fails.
const FailureMessage = "Sorry, something went wrong while preparing your reply. Please try again."

var (
	// ErrBusy is returned when a turn is submitted while another is in flight.
	ErrBusy = errors.New("a drafting request is already in progress")
	// ErrStale is returned for a turn that was cancelled before it finished.
	// Its result is discarded.
	ErrStale = errors.New("drafting request was cancelled")
	// ErrEmptyUtterance is returned for blank input.
	ErrEmptyUtterance = errors.New("message is empty")
)

// Drafter runs one drafting call for the given document context.
type Drafter interface {
	Draft(ctx context.Context, contextText string, opts prompt.DraftOptions) (*models.DraftResult, error)
}

// Settings are fixed for the lifetime of a controller.
type Settings struct {
	ContextText  string
	Tone         models.Tone
	LanguageName string
}

// Mode is how a turn was handled.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeRevise   Mode = "revise"
	ModeAnswer   Mode = "answer"
)

// Snapshot is a copy of the controller state.
type Snapshot struct {
	CurrentDraft string                   `json:"currentDraft"`
	Transcript   []models.TranscriptEntry `json:"transcript"`
	ModelUsed    string                   `json:"modelUsed,omitempty"`
	Busy         bool                     `json:"busy"`
}

// Controller owns the current draft and the chat transcript. One turn runs
// at a time; state only changes when a turn completes and is still current.
type Controller struct {
	drafter  Drafter
	lexicon  prompt.Lexicon
	settings Settings

	mu           sync.Mutex
	currentDraft string
	transcript   []models.TranscriptEntry
	modelUsed    string
	busy         bool
	epoch        uint64
	cancel       context.CancelFunc
}

func NewController(drafter Drafter, lexicon prompt.Lexicon, settings Settings) *Controller {
	settings.Tone = models.ParseTone(string(settings.Tone))
	return &Controller{
		drafter:  drafter,
		lexicon:  lexicon,
		settings: settings,
	}
}

type turn struct {
	mode  Mode
	opts  prompt.DraftOptions
	text  string
	epoch uint64
}

// plan decides how to handle utterance. Caller holds mu.
func (c *Controller) plan(utterance string) turn {
	t := turn{text: utterance, epoch: c.epoch}
	t.opts = prompt.DraftOptions{
		Tone:         c.settings.Tone,
		LanguageName: c.settings.LanguageName,
	}

	if models.IsNamedTemplate(utterance) {
		t.mode = ModeGenerate
		t.opts.TemplateID = utterance
		return t
	}

	question := utterance
	if q, ok := models.QuestionText(utterance); ok {
		question = q
	}
	t.opts.TemplateID = models.QuestionPrefix + " " + question

	if c.currentDraft == "" && len(c.transcript) == 0 {
		t.mode = ModeGenerate
		t.opts.ForceGenerate = true
		return t
	}

	switch prompt.Classify(c.lexicon, question, c.currentDraft) {
	case prompt.IntentRevise:
		t.mode = ModeRevise
		t.opts.CurrentDraft = c.currentDraft
	case prompt.IntentGenerate:
		t.mode = ModeGenerate
	default:
		t.mode = ModeAnswer
	}
	return t
}

// Submit handles one user turn. On failure it returns a placeholder result
// alongside the error and leaves the state untouched.
func (c *Controller) Submit(ctx context.Context, utterance string) (*models.DraftResult, Mode, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, "", ErrEmptyUtterance
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, "", ErrBusy
	}
	t := c.plan(utterance)
	ctx, cancel := context.WithCancel(ctx)
	c.busy = true
	c.cancel = cancel
	c.mu.Unlock()

	result, err := c.drafter.Draft(ctx, c.settings.ContextText, t.opts)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != t.epoch {
		return nil, t.mode, ErrStale
	}
	c.busy = false
	c.cancel = nil

	if err != nil {
		return c.placeholder(), t.mode, err
	}
	c.commit(t, result)
	return result, t.mode, nil
}

// commit applies a successful turn. Caller holds mu.
func (c *Controller) commit(t turn, result *models.DraftResult) {
	c.modelUsed = result.ModelUsed

	switch t.mode {
	case ModeGenerate:
		c.currentDraft = result.Draft
		c.transcript = nil
	case ModeRevise:
		if d := strings.TrimSpace(result.Draft); d != "" && d != strings.TrimSpace(c.currentDraft) {
			c.currentDraft = result.Draft
		}
		c.appendExchange(t.text, result, "Draft updated.")
	case ModeAnswer:
		c.appendExchange(t.text, result, "")
	}
}

func (c *Controller) appendExchange(user string, result *models.DraftResult, fallback string) {
	reply := strings.TrimSpace(result.ChatResponse)
	if reply == "" {
		reply = strings.TrimSpace(result.Explanation)
	}
	if reply == "" {
		reply = fallback
	}
	c.transcript = append(c.transcript,
		models.TranscriptEntry{Role: models.RoleUser, Text: user},
		models.TranscriptEntry{Role: models.RoleAssistant, Text: reply},
	)
}

func (c *Controller) placeholder() *models.DraftResult {
	return &models.DraftResult{
		Draft:        c.currentDraft,
		ChatResponse: FailureMessage,
		ModelUsed:    c.modelUsed,
	}
}

// Cancel abandons the in-flight turn, if any. Its result will be discarded.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.busy {
		return false
	}
	c.epoch++
	c.busy = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return true
}

// SetDraft replaces the draft with text the user edited by hand.
func (c *Controller) SetDraft(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrBusy
	}
	c.currentDraft = text
	return nil
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	transcript := make([]models.TranscriptEntry, len(c.transcript))
	copy(transcript, c.transcript)
	return Snapshot{
		CurrentDraft: c.currentDraft,
		Transcript:   transcript,
		ModelUsed:    c.modelUsed,
		Busy:         c.busy,
	}
}
