package drafting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const originalDraft = "Dear Tax Office, I am writing regarding reference 2026-4471 dated 3 March. " +
	"I believe the assessed amount of 420 EUR is incorrect because my income was lower. " +
	"Please review the calculation."

// fakeDrafter answers like a well-behaved backend: generation returns a
// letter per template, revision edits the given draft, answers leave the
// draft empty.
type fakeDrafter struct {
	mu    sync.Mutex
	calls []prompt.DraftOptions
	err   error
	gate  chan struct{}
}

func (f *fakeDrafter) Draft(ctx context.Context, contextText string, opts prompt.DraftOptions) (*models.DraftResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	gate := f.gate
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	switch prompt.NewBuilder().DraftIntent(opts) {
	case prompt.IntentRevise:
		revised := strings.Replace(opts.CurrentDraft, "Please review the calculation.", "I kindly ask you to review the calculation.", 1)
		return &models.DraftResult{Draft: revised, ChatResponse: "Made it more polite.", ModelUsed: "gpt"}, nil
	case prompt.IntentGenerate:
		if opts.TemplateID == models.TemplateDispute {
			return &models.DraftResult{Draft: originalDraft, ModelUsed: "gpt"}, nil
		}
		return &models.DraftResult{Draft: "Letter for " + opts.TemplateID + " " + strings.Repeat("x", 60), ModelUsed: "gpt"}, nil
	default:
		return &models.DraftResult{ChatResponse: "The deadline is 30 days.", ModelUsed: "gpt"}, nil
	}
}

func (f *fakeDrafter) lastCall() prompt.DraftOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newController(d Drafter) *Controller {
	return NewController(d, prompt.DefaultLexicon(), Settings{ContextText: "tax notice", LanguageName: "English"})
}

func tokenOverlap(a, b string) float64 {
	set := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(a)) {
		set[tok] = true
	}
	tokens := strings.Fields(strings.ToLower(b))
	shared := 0
	for _, tok := range tokens {
		if set[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(tokens))
}

func TestController_NamedTemplateGenerates(t *testing.T) {
	d := &fakeDrafter{}
	c := newController(d)

	res, mode, err := c.Submit(context.Background(), models.TemplateDispute)
	require.NoError(t, err)
	assert.Equal(t, ModeGenerate, mode)
	assert.Equal(t, originalDraft, res.Draft)
	assert.Equal(t, models.TemplateDispute, d.lastCall().TemplateID)
	assert.Equal(t, models.ToneProfessional, d.lastCall().Tone)

	snap := c.Snapshot()
	assert.Equal(t, originalDraft, snap.CurrentDraft)
	assert.Empty(t, snap.Transcript)
}

func TestController_SameTemplateTwiceDiscardsFirst(t *testing.T) {
	d := &fakeDrafter{}
	c := newController(d)

	_, _, err := c.Submit(context.Background(), models.TemplateDispute)
	require.NoError(t, err)
	_, _, err = c.Submit(context.Background(), "make it more polite")
	require.NoError(t, err)
	require.NotEmpty(t, c.Snapshot().Transcript)

	_, mode, err := c.Submit(context.Background(), models.TemplateDispute)
	require.NoError(t, err)
	assert.Equal(t, ModeGenerate, mode)
	assert.Empty(t, d.lastCall().CurrentDraft, "generation must not see the previous draft")

	snap := c.Snapshot()
	assert.Equal(t, originalDraft, snap.CurrentDraft)
	assert.Empty(t, snap.Transcript)
}

func TestController_RevisionKeepsDraftRelated(t *testing.T) {
	d := &fakeDrafter{}
	c := newController(d)
	_, _, err := c.Submit(context.Background(), models.TemplateDispute)
	require.NoError(t, err)
	require.Greater(t, len(originalDraft), 150)

	res, mode, err := c.Submit(context.Background(), "make it more polite")
	require.NoError(t, err)
	assert.Equal(t, ModeRevise, mode)
	assert.Equal(t, originalDraft, d.lastCall().CurrentDraft)

	assert.NotEqual(t, originalDraft, res.Draft)
	assert.GreaterOrEqual(t, tokenOverlap(originalDraft, res.Draft), 0.5)

	snap := c.Snapshot()
	assert.Equal(t, res.Draft, snap.CurrentDraft)
	assert.Equal(t, []models.TranscriptEntry{
		{Role: models.RoleUser, Text: "make it more polite"},
		{Role: models.RoleAssistant, Text: "Made it more polite."},
	}, snap.Transcript)
}

func TestController_RevisionWithEmptyDraftKeepsCurrent(t *testing.T) {
	d := &emptyReviser{}
	c := newController(d)
	_, _, err := c.Submit(context.Background(), models.TemplateDispute)
	require.NoError(t, err)

	_, _, err = c.Submit(context.Background(), "shorter please")
	require.NoError(t, err)
	snap := c.Snapshot()
	assert.Equal(t, originalDraft, snap.CurrentDraft)
	assert.Equal(t, "Draft updated.", snap.Transcript[1].Text)
}

type emptyReviser struct{}

func (emptyReviser) Draft(ctx context.Context, contextText string, opts prompt.DraftOptions) (*models.DraftResult, error) {
	if opts.CurrentDraft == "" {
		return &models.DraftResult{Draft: originalDraft}, nil
	}
	return &models.DraftResult{Draft: "  "}, nil
}

func TestController_FirstFreeTextGenerates(t *testing.T) {
	d := &fakeDrafter{}
	c := newController(d)

	_, mode, err := c.Submit(context.Background(), "what does this mean?")
	require.NoError(t, err)
	assert.Equal(t, ModeGenerate, mode)
	assert.True(t, d.lastCall().ForceGenerate)
	assert.Equal(t, "Question: what does this mean?", d.lastCall().TemplateID)
	assert.NotEmpty(t, c.Snapshot().CurrentDraft)
}

func TestController_AnswerOnlyLeavesDraft(t *testing.T) {
	d := &fakeDrafter{}
	c := newController(d)
	require.NoError(t, c.SetDraft("short note"))

	res, mode, err := c.Submit(context.Background(), "when is the deadline?")
	require.NoError(t, err)
	assert.Equal(t, ModeAnswer, mode)
	assert.Empty(t, res.Draft)

	snap := c.Snapshot()
	assert.Equal(t, "short note", snap.CurrentDraft)
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, "The deadline is 30 days.", snap.Transcript[1].Text)
}

func TestController_WantsToWriteWithoutDraftGenerates(t *testing.T) {
	d := &fakeDrafter{}
	c := newController(d)
	require.NoError(t, c.SetDraft("short note"))

	_, mode, err := c.Submit(context.Background(), "write an email asking for more time")
	require.NoError(t, err)
	assert.Equal(t, ModeGenerate, mode)
	assert.Empty(t, c.Snapshot().Transcript)
}

func TestController_FailureLeavesStateUnchanged(t *testing.T) {
	d := &fakeDrafter{}
	c := newController(d)
	_, _, err := c.Submit(context.Background(), models.TemplateDispute)
	require.NoError(t, err)
	before := c.Snapshot()

	d.mu.Lock()
	d.err = errors.New("all providers failed")
	d.mu.Unlock()

	res, _, err := c.Submit(context.Background(), "make it shorter")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, FailureMessage, res.ChatResponse)
	assert.Equal(t, originalDraft, res.Draft)
	assert.Equal(t, before, c.Snapshot())
}

func TestController_BusyAndCancel(t *testing.T) {
	d := &fakeDrafter{gate: make(chan struct{})}
	c := newController(d)

	done := make(chan error, 1)
	go func() {
		_, _, err := c.Submit(context.Background(), models.TemplateClarify)
		done <- err
	}()

	require.Eventually(t, c.Busy, time.Second, time.Millisecond)

	_, _, err := c.Submit(context.Background(), models.TemplateDispute)
	assert.ErrorIs(t, err, ErrBusy)

	assert.True(t, c.Cancel())
	assert.ErrorIs(t, <-done, ErrStale)
	assert.False(t, c.Busy())
	assert.Empty(t, c.Snapshot().CurrentDraft)
	assert.False(t, c.Cancel())
}

func TestController_EmptyUtterance(t *testing.T) {
	c := newController(&fakeDrafter{})
	_, _, err := c.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyUtterance)
}

func TestSessionStore(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s := NewSessionStore(&fakeDrafter{}, prompt.DefaultLexicon(), time.Hour)
	s.now = func() time.Time { return now }

	idle, _ := s.Create(Settings{})
	active, _ := s.Create(Settings{})
	assert.Equal(t, 2, s.Len())

	now = now.Add(45 * time.Minute)
	_, ok := s.Get(active)
	require.True(t, ok)

	now = now.Add(30 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	_, ok = s.Get(idle)
	assert.False(t, ok)

	assert.True(t, s.Delete(active))
	assert.False(t, s.Delete(active))
	assert.Equal(t, 0, s.Len())
}
