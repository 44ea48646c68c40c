package services

import (
	"context"
	"errors"
	"strings"

	"github.com/DocExplain/DocExplain-app/internal/drafting"
	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/normalizer"
	"github.com/DocExplain/DocExplain-app/internal/orchestrator"
	"github.com/DocExplain/DocExplain-app/internal/prompt"
	"github.com/DocExplain/DocExplain-app/internal/provider"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

// SessionRequest opens a drafting conversation over one document.
type SessionRequest struct {
	ContextText  string      `json:"context"`
	Tone         models.Tone `json:"tone"`
	LanguageName string      `json:"lang"`
	CurrentDraft string      `json:"currentDraft,omitempty"`
}

// Session is a drafting session's id and state.
type Session struct {
	ID string `json:"id"`
	drafting.Snapshot
}

// Turn is the reply to one session message.
type Turn struct {
	Result  *models.DraftResult `json:"result"`
	Mode    drafting.Mode       `json:"mode"`
	Session Session             `json:"session"`
	Error   string              `json:"error,omitempty"`
}

type DraftService interface {
	// Draft runs a single stateless drafting call.
	Draft(ctx context.Context, req *models.DraftRequest) (*models.DraftResult, error)
	CreateSession(req *SessionRequest) (*Session, error)
	GetSession(id string) (*Session, error)
	// SendMessage submits a template id or free text to a session. A failed
	// turn returns a Turn carrying the failure message and the unchanged
	// draft together with the error.
	SendMessage(ctx context.Context, id, text string) (*Turn, error)
	CancelSession(id string) (bool, error)
	DeleteSession(id string) error
}

// drafter runs drafting calls through the orchestration policy.
type drafter struct {
	runner  Runner
	builder *prompt.Builder
}

// NewDrafter returns the drafting.Drafter backed by runner.
func NewDrafter(runner Runner, builder *prompt.Builder) drafting.Drafter {
	if builder == nil {
		builder = prompt.NewBuilder()
	}
	return &drafter{runner: runner, builder: builder}
}

func (d *drafter) Draft(ctx context.Context, contextText string, opts prompt.DraftOptions) (*models.DraftResult, error) {
	instructions, _ := d.builder.Draft(opts)

	var parsed *models.DraftResult
	out, err := d.runner.Run(ctx, orchestrator.Input{
		Task: orchestrator.TaskDraft,
		Call: provider.Call{
			Instructions: instructions,
			Content:      contextText,
			Schema:       normalizer.DraftSchema(),
		},
		TemplateID: opts.TemplateID,
		Validate: func(raw string) error {
			r, err := normalizer.ParseDraft(raw)
			if err != nil {
				return err
			}
			parsed = r
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	parsed.ModelUsed = out.ModelUsed
	return parsed, nil
}

type draftService struct {
	drafter  drafting.Drafter
	sessions *drafting.SessionStore
	logger   *utils.Logger
}

func NewDraftService(d drafting.Drafter, sessions *drafting.SessionStore, logger *utils.Logger) DraftService {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &draftService{drafter: d, sessions: sessions, logger: logger}
}

func (s *draftService) Draft(ctx context.Context, req *models.DraftRequest) (*models.DraftResult, error) {
	if req == nil || strings.TrimSpace(req.TemplateID) == "" {
		return nil, utils.NewBadRequestError("template is required")
	}
	if strings.TrimSpace(req.ContextText) == "" {
		return nil, utils.NewBadRequestError("context is required")
	}

	result, err := s.drafter.Draft(ctx, req.ContextText, prompt.DraftOptions{
		TemplateID:   req.TemplateID,
		Tone:         models.ParseTone(string(req.Tone)),
		LanguageName: req.LanguageName,
		CurrentDraft: req.CurrentDraft,
	})
	if err != nil {
		s.logger.Error("Drafting failed", "error", err, "template", req.TemplateID)
		return nil, appError(err, "Drafting")
	}
	return result, nil
}

func (s *draftService) CreateSession(req *SessionRequest) (*Session, error) {
	if req == nil || strings.TrimSpace(req.ContextText) == "" {
		return nil, utils.NewBadRequestError("context is required")
	}

	id, c := s.sessions.Create(drafting.Settings{
		ContextText:  req.ContextText,
		Tone:         req.Tone,
		LanguageName: req.LanguageName,
	})
	if req.CurrentDraft != "" {
		if err := c.SetDraft(req.CurrentDraft); err != nil {
			return nil, utils.NewInternalError("Failed to initialise draft").WithCause(err)
		}
	}
	return &Session{ID: id, Snapshot: c.Snapshot()}, nil
}

func (s *draftService) GetSession(id string) (*Session, error) {
	c, err := s.controller(id)
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, Snapshot: c.Snapshot()}, nil
}

func (s *draftService) SendMessage(ctx context.Context, id, text string) (*Turn, error) {
	c, err := s.controller(id)
	if err != nil {
		return nil, err
	}

	result, mode, err := c.Submit(ctx, text)
	turn := &Turn{Result: result, Mode: mode, Session: Session{ID: id, Snapshot: c.Snapshot()}}

	switch {
	case err == nil:
		return turn, nil
	case errors.Is(err, drafting.ErrEmptyUtterance):
		return nil, utils.NewBadRequestError("message is required")
	case errors.Is(err, drafting.ErrBusy):
		return nil, utils.NewConflictError("A drafting request is already in progress for this session")
	case errors.Is(err, drafting.ErrStale):
		return nil, utils.NewConflictError("The request was cancelled")
	}

	s.logger.Error("Drafting turn failed", "error", err, "session_id", id, "mode", mode)
	turn.Error = drafting.FailureMessage
	return turn, appError(err, "Drafting")
}

func (s *draftService) CancelSession(id string) (bool, error) {
	c, err := s.controller(id)
	if err != nil {
		return false, err
	}
	return c.Cancel(), nil
}

func (s *draftService) DeleteSession(id string) error {
	if !s.sessions.Delete(id) {
		return utils.NewNotFoundError("Drafting session not found")
	}
	return nil
}

func (s *draftService) controller(id string) (*drafting.Controller, error) {
	c, ok := s.sessions.Get(id)
	if !ok {
		return nil, utils.NewNotFoundError("Drafting session not found")
	}
	return c, nil
}
