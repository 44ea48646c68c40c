package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DocExplain/DocExplain-app/internal/extractor"
	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/normalizer"
	"github.com/DocExplain/DocExplain-app/internal/orchestrator"
	"github.com/DocExplain/DocExplain-app/internal/prompt"
	"github.com/DocExplain/DocExplain-app/internal/provider"
	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/DocExplain/DocExplain-app/internal/repository"
	"github.com/DocExplain/DocExplain-app/internal/storage"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

const defaultHistoryLimit = 50

type AnalysisService interface {
	// Analyze runs the analysis task. A non-empty deviceID enables the
	// quota gate and history.
	Analyze(ctx context.Context, deviceID string, req *models.AnalysisRequest) (*models.AnalysisResult, error)
	AnalyzeUpload(ctx context.Context, deviceID string, up *models.Upload) (*models.AnalysisResult, error)
	History(ctx context.Context, deviceID string, limit int) ([]models.HistoryEntry, error)
	GetHistory(ctx context.Context, id string) (*models.HistoryEntry, error)
	DeleteHistory(ctx context.Context, id string) error
	// Original returns the archived upload behind a history entry.
	Original(ctx context.Context, id string) ([]byte, string, error)
}

// Runner is the part of the orchestration policy the services use.
type Runner interface {
	Run(ctx context.Context, in orchestrator.Input) (*orchestrator.Output, error)
}

type analysisService struct {
	runner  Runner
	builder *prompt.Builder
	gate    *quota.Gate
	history repository.HistoryRepository
	archive storage.Archive
	logger  *utils.Logger
	now     func() time.Time
}

// original is the raw payload kept for the history preview.
type original struct {
	data        []byte
	contentType string
}

// NewAnalysisService wires the analysis task. gate, history and archive
// may be nil to disable quota, history and archiving.
func NewAnalysisService(runner Runner, builder *prompt.Builder, gate *quota.Gate, history repository.HistoryRepository, archive storage.Archive, logger *utils.Logger) AnalysisService {
	if builder == nil {
		builder = prompt.NewBuilder()
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &analysisService{
		runner:  runner,
		builder: builder,
		gate:    gate,
		history: history,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *analysisService) Analyze(ctx context.Context, deviceID string, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	var orig *original
	if req != nil && req.ImageBase64 != "" {
		if data, err := provider.DecodeBase64(req.ImageBase64); err == nil {
			orig = &original{data: data, contentType: provider.DetectMediaType(req.ImageBase64)}
		}
	}
	return s.analyze(ctx, deviceID, req, orig)
}

func (s *analysisService) AnalyzeUpload(ctx context.Context, deviceID string, up *models.Upload) (*models.AnalysisResult, error) {
	if up == nil || len(up.Data) == 0 {
		return nil, utils.NewBadRequestError("Uploaded file is empty")
	}

	contentType := extractor.DetectContentType(up.FileName, up.ContentType)
	req := &models.AnalysisRequest{
		FileName:     up.FileName,
		LanguageName: up.LanguageName,
		Country:      up.Country,
		Region:       up.Region,
	}

	switch {
	case extractor.IsImage(contentType), contentType == extractor.TypePDF:
		req.ImageBase64 = base64.StdEncoding.EncodeToString(up.Data)
		req.RawText = strings.TrimSpace(up.ContextText)
	default:
		text, err := extractor.Extract(up.Data, contentType)
		if errors.Is(err, extractor.ErrUnsupported) {
			return nil, utils.NewBadRequestError("Only PDF, DOCX, TXT and image files are supported")
		}
		if err != nil {
			s.logger.Warn("Failed to extract text", "error", err, "content_type", contentType, "filename", up.FileName)
			return nil, utils.NewBadRequestError("No text could be extracted from the document").WithCause(err)
		}
		req.RawText = joinContext(up.ContextText, text)
	}

	return s.analyze(ctx, deviceID, req, &original{data: up.Data, contentType: contentType})
}

func (s *analysisService) analyze(ctx context.Context, deviceID string, req *models.AnalysisRequest, orig *original) (*models.AnalysisResult, error) {
	if req == nil || (strings.TrimSpace(req.RawText) == "" && strings.TrimSpace(req.ImageBase64) == "") {
		return nil, utils.NewBadRequestError("Either document text or an image is required")
	}

	gated := deviceID != "" && s.gate != nil
	var reservation *quota.Reservation
	if gated {
		res, r, err := s.gate.Reserve(ctx, deviceID, utf8.RuneCountInString(req.RawText))
		if err != nil {
			s.logger.Error("Quota check failed", "error", err, "device_id", deviceID)
			return nil, appError(err, "Analysis")
		}
		if res.Decision != quota.Allow {
			return nil, &QuotaError{Result: res}
		}
		reservation = r
	}

	var parsed *models.AnalysisResult
	out, err := s.runner.Run(ctx, orchestrator.Input{
		Task: orchestrator.TaskAnalysis,
		Call: provider.Call{
			Instructions: s.builder.Analysis(req.LanguageName, req.Country, req.Region),
			Content:      req.RawText,
			Image:        req.ImageBase64,
			Schema:       normalizer.AnalysisSchema(),
		},
		Validate: func(raw string) error {
			r, err := normalizer.ParseAnalysis(raw, req.RawText)
			if err != nil {
				return err
			}
			parsed = r
			return nil
		},
	})
	if err != nil {
		if reservation != nil {
			if _, rerr := s.gate.Release(context.WithoutCancel(ctx), reservation); rerr != nil {
				s.logger.Error("Failed to release analysis quota", "error", rerr, "device_id", deviceID)
			}
		}
		return nil, appError(err, "Analysis")
	}

	normalizer.Stamp(parsed, req.FileName, out.ModelUsed, s.now())

	if gated {
		s.remember(ctx, deviceID, parsed, orig)
	}

	s.logger.Info("Document analyzed",
		"model_used", out.ModelUsed,
		"category", parsed.Category,
		"pages", len(parsed.Pages),
		"text_length", len(req.RawText))
	return parsed, nil
}

// remember stores a history entry. Failures are logged; the analysis
// itself already succeeded.
func (s *analysisService) remember(ctx context.Context, deviceID string, result *models.AnalysisResult, orig *original) {
	if s.history == nil {
		return
	}

	entry := &models.HistoryEntry{
		ID:        utils.GenerateID(),
		DeviceID:  deviceID,
		Result:    *result,
		CreatedAt: s.now().UTC(),
	}

	if s.archive != nil && orig != nil && len(orig.data) > 0 {
		key := storage.Key(entry.ID, result.FileName)
		if err := s.archive.Put(ctx, key, orig.data, orig.contentType); err != nil {
			s.logger.Error("Failed to archive upload", "error", err, "key", key)
		} else {
			entry.ArchiveKey = key
		}
	}

	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to save history entry", "error", err, "id", entry.ID)
		if entry.ArchiveKey != "" {
			_ = s.archive.Delete(ctx, entry.ArchiveKey)
		}
	}
}

func (s *analysisService) History(ctx context.Context, deviceID string, limit int) ([]models.HistoryEntry, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, utils.NewBadRequestError("deviceId is required")
	}
	if s.history == nil {
		return []models.HistoryEntry{}, nil
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}

	entries, err := s.history.ListByDevice(ctx, deviceID, limit)
	if err != nil {
		s.logger.Error("Failed to list history", "error", err, "device_id", deviceID)
		return nil, utils.NewInternalError("Failed to retrieve history")
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

func (s *analysisService) GetHistory(ctx context.Context, id string) (*models.HistoryEntry, error) {
	if s.history == nil {
		return nil, utils.NewNotFoundError("History entry not found")
	}
	entry, err := s.history.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get history entry", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve history entry")
	}
	if entry == nil {
		return nil, utils.NewNotFoundError("History entry not found")
	}
	return entry, nil
}

func (s *analysisService) DeleteHistory(ctx context.Context, id string) error {
	if s.history == nil {
		return utils.NewNotFoundError("History entry not found")
	}
	entry, err := s.history.Delete(ctx, id)
	if err != nil {
		s.logger.Error("Failed to delete history entry", "error", err, "id", id)
		return utils.NewInternalError("Failed to delete history entry")
	}
	if entry == nil {
		return utils.NewNotFoundError("History entry not found")
	}
	if entry.ArchiveKey != "" && s.archive != nil {
		if err := s.archive.Delete(ctx, entry.ArchiveKey); err != nil {
			s.logger.Warn("Failed to delete archived upload", "error", err, "key", entry.ArchiveKey)
		}
	}
	return nil
}

func (s *analysisService) Original(ctx context.Context, id string) ([]byte, string, error) {
	entry, err := s.GetHistory(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if entry.ArchiveKey == "" || s.archive == nil {
		return nil, "", utils.NewNotFoundError("No original document was archived for this entry")
	}

	data, contentType, err := s.archive.Get(ctx, entry.ArchiveKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", utils.NewNotFoundError("Archived document not found")
	}
	if err != nil {
		s.logger.Error("Failed to read archived upload", "error", err, "key", entry.ArchiveKey)
		return nil, "", utils.NewInternalError("Failed to retrieve original document")
	}
	return data, contentType, nil
}

func joinContext(contextText, text string) string {
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		return text
	}
	return contextText + "\n\n" + text
}
