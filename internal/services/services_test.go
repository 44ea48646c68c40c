package services

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/ads"
	"github.com/DocExplain/DocExplain-app/internal/db"
	"github.com/DocExplain/DocExplain-app/internal/drafting"
	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/orchestrator"
	"github.com/DocExplain/DocExplain-app/internal/prompt"
	"github.com/DocExplain/DocExplain-app/internal/provider"
	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/DocExplain/DocExplain-app/internal/repository"
	"github.com/DocExplain/DocExplain-app/internal/storage"
	"github.com/DocExplain/DocExplain-app/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validAnalysis = `{"summary":"A tax notice","keyPoints":["Pay 120 EUR","Due 30 November"],` +
	`"category":"taxation","isLegible":true}`

type scriptedAdapter struct {
	name  string
	out   string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls []provider.Call
}

func (s *scriptedAdapter) Name() string    { return s.name }
func (s *scriptedAdapter) Available() bool { return s.name != "" }

func (s *scriptedAdapter) Invoke(ctx context.Context, call provider.Call) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return "", &provider.Error{Provider: s.name, Err: s.err}
	}
	return s.out, nil
}

func (s *scriptedAdapter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedAdapter) last() provider.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type fixture struct {
	long, fast *scriptedAdapter
	gate       *quota.Gate
	history    repository.HistoryRepository
	archive    *storage.MemoryArchive
	svc        AnalysisService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn))

	f := &fixture{
		long:    &scriptedAdapter{name: "gemini-2.0-flash", out: validAnalysis},
		fast:    &scriptedAdapter{name: "gpt-4o-mini", out: validAnalysis},
		history: repository.NewHistoryRepository(conn),
		archive: storage.NewMemoryArchive(),
	}
	f.gate = quota.NewGate(quota.NewMemoryStore(), quota.Config{Location: time.UTC}, nil)
	policy := orchestrator.NewPolicy(f.long, f.fast, orchestrator.Config{}, nil, nil)
	f.svc = NewAnalysisService(policy, nil, f.gate, f.history, f.archive, nil)
	return f
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var ae *utils.AppError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.StatusCode()
	}
	t.Fatalf("unexpected error type %T: %v", err, err)
	return 0
}

func TestAnalyze_RejectsEmptyInputBeforeAnyCall(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Analyze(context.Background(), "dev", &models.AnalysisRequest{RawText: "  ", LanguageName: "English"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	assert.Zero(t, f.long.count()+f.fast.count())
}

func TestAnalyze_SuccessConsumesQuotaAndStoresHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Analyze(ctx, "dev", &models.AnalysisRequest{
		RawText:      "Avis d'imposition 2026",
		FileName:     "avis.txt",
		LanguageName: "French",
		Country:      "France",
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.ModelUsed)
	assert.Equal(t, "avis.txt", res.FileName)
	assert.Equal(t, models.CategoryTaxation, res.Category)
	assert.NotEmpty(t, res.Timestamp)
	assert.Contains(t, f.fast.last().Instructions, "France")

	st, err := f.gate.State(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, 1, st.DailyUsageCount)

	entries, err := f.svc.History(ctx, "dev", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A tax notice", entries[0].Result.Summary)
	assert.Empty(t, entries[0].ArchiveKey, "text requests have nothing to archive")
}

func TestAnalyze_AnonymousSkipsQuotaAndHistory(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Analyze(context.Background(), "", &models.AnalysisRequest{RawText: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 0, f.archive.Len())

	_, err = f.svc.History(context.Background(), "", 10)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestAnalyze_ImageArchivedAndPreviewable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

	res, err := f.svc.Analyze(ctx, "dev", &models.AnalysisRequest{
		ImageBase64:  base64.StdEncoding.EncodeToString(jpeg),
		FileName:     "scan.jpg",
		LanguageName: "English",
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", res.ModelUsed, "images go to the long-context backend first")
	assert.Zero(t, f.fast.count())

	entries, err := f.svc.History(ctx, "dev", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotEmpty(t, entries[0].ArchiveKey)

	data, contentType, err := f.svc.Original(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, jpeg, data)
	assert.Equal(t, "image/jpeg", contentType)

	require.NoError(t, f.svc.DeleteHistory(ctx, entries[0].ID))
	assert.Equal(t, 0, f.archive.Len())
	assert.Equal(t, http.StatusNotFound, statusOf(t, f.svc.DeleteHistory(ctx, entries[0].ID)))
}

func TestAnalyze_TotalFailureLeavesQuotaAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.long.err = errors.New("quota exceeded upstream")
	f.fast.err = errors.New("bad gateway")

	_, err := f.svc.Analyze(ctx, "dev", &models.AnalysisRequest{RawText: "short text"})
	require.Error(t, err)

	var ae *utils.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusInternalServerError, ae.StatusCode)
	assert.Contains(t, ae.Details, "bad gateway")
	assert.Contains(t, ae.Details, "quota exceeded upstream")

	st, err := f.gate.State(ctx, "dev")
	require.NoError(t, err)
	assert.Zero(t, st.DailyUsageCount)

	entries, err := f.svc.History(ctx, "dev", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAnalyze_UnparseableResultFallsBack(t *testing.T) {
	f := newFixture(t)
	f.fast.out = "I cannot help with that."

	res, err := f.svc.Analyze(context.Background(), "", &models.AnalysisRequest{RawText: "short text"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash (fallback)", res.ModelUsed)
}

func TestAnalyze_QuotaGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := &models.AnalysisRequest{RawText: "short text"}

	for i := 0; i < quota.FreeDailyLimit; i++ {
		_, err := f.svc.Analyze(ctx, "dev", req)
		require.NoError(t, err)
	}
	calls := f.fast.count()

	_, err := f.svc.Analyze(ctx, "dev", req)
	var qe *QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, http.StatusTooManyRequests, qe.StatusCode())
	assert.Equal(t, quota.AtLimit, qe.Result.Decision)
	assert.Equal(t, []quota.Option{quota.OptionWatchAd, quota.OptionUpgrade}, qe.Result.Options)
	assert.Equal(t, calls, f.fast.count(), "refused requests never reach a backend")

	_, err = f.gate.CreditReward(ctx, "dev")
	require.NoError(t, err)
	_, err = f.svc.Analyze(ctx, "dev", req)
	assert.NoError(t, err)
}

func TestAnalyze_ConcurrentRequestsStayWithinQuota(t *testing.T) {
	f := newFixture(t)
	f.fast.delay = 50 * time.Millisecond
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		limited int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Analyze(ctx, "dev", &models.AnalysisRequest{RawText: "short text"})

			mu.Lock()
			defer mu.Unlock()
			var qe *QuotaError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &qe):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, quota.FreeDailyLimit, ok)
	assert.Equal(t, 6-quota.FreeDailyLimit, limited)
	assert.Equal(t, quota.FreeDailyLimit, f.fast.count())

	st, err := f.gate.State(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, quota.FreeDailyLimit, st.DailyUsageCount)
}

func TestAnalyze_FailureReleasesReservedQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := &models.AnalysisRequest{RawText: "short text"}

	for i := 0; i < quota.FreeDailyLimit-1; i++ {
		_, err := f.svc.Analyze(ctx, "dev", req)
		require.NoError(t, err)
	}

	f.long.err = errors.New("timeout")
	f.fast.err = errors.New("bad gateway")
	_, err := f.svc.Analyze(ctx, "dev", req)
	require.Error(t, err)

	f.long.err, f.fast.err = nil, nil
	_, err = f.svc.Analyze(ctx, "dev", req)
	require.NoError(t, err, "the failed attempt must not use up the last free analysis")

	st, err := f.gate.State(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, quota.FreeDailyLimit, st.DailyUsageCount)
}

func TestAnalyze_LongDocumentRequiresUpgrade(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Analyze(context.Background(), "dev", &models.AnalysisRequest{
		RawText: strings.Repeat("a", quota.MaxFreeChars+1),
	})
	assert.Equal(t, http.StatusPaymentRequired, statusOf(t, err))

	_, err = f.gate.SetPro(context.Background(), "dev", true)
	require.NoError(t, err)
	_, err = f.svc.Analyze(context.Background(), "dev", &models.AnalysisRequest{
		RawText: strings.Repeat("a", quota.MaxFreeChars+1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.long.count(), "long text goes to the long-context backend")
}

func TestAnalyze_NotConfigured(t *testing.T) {
	policy := orchestrator.NewPolicy(&scriptedAdapter{}, &scriptedAdapter{}, orchestrator.Config{}, nil, nil)
	svc := NewAnalysisService(policy, nil, nil, nil, nil, nil)

	_, err := svc.Analyze(context.Background(), "", &models.AnalysisRequest{RawText: "text"})
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
}

func TestAnalyzeUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.AnalyzeUpload(ctx, "dev", &models.Upload{
		Data:         []byte("Rent increase notice\r\nEffective January"),
		FileName:     "notice.txt",
		ContextText:  "From my landlord",
		LanguageName: "English",
	})
	require.NoError(t, err)
	assert.Equal(t, "notice.txt", res.FileName)
	assert.Equal(t, "From my landlord\n\nRent increase notice\nEffective January", f.fast.last().Content)
	assert.Equal(t, 1, f.archive.Len())

	_, err = f.svc.AnalyzeUpload(ctx, "dev", &models.Upload{
		Data:     []byte("%PDF-1.7 fake"),
		FileName: "letter.pdf",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, f.long.last().Image, "PDFs are sent as a binary payload")

	_, err = f.svc.AnalyzeUpload(ctx, "dev", &models.Upload{Data: []byte("PK"), FileName: "a.zip", ContentType: "application/zip"})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = f.svc.AnalyzeUpload(ctx, "dev", &models.Upload{FileName: "empty.txt"})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

const validDraft = `{"draft":"Dear Sir or Madam,\nI am writing about the notice.","disclaimer":"Review before sending."}`

func newDraftService(long, fast *scriptedAdapter) DraftService {
	policy := orchestrator.NewPolicy(long, fast, orchestrator.Config{}, nil, nil)
	d := NewDrafter(policy, prompt.NewBuilder())
	return NewDraftService(d, drafting.NewSessionStore(d, prompt.DefaultLexicon(), 0), nil)
}

func TestDraft(t *testing.T) {
	long := &scriptedAdapter{name: "gemini-2.0-flash", out: validDraft}
	fast := &scriptedAdapter{name: "gpt-4o-mini", out: validDraft}
	svc := newDraftService(long, fast)
	ctx := context.Background()

	res, err := svc.Draft(ctx, &models.DraftRequest{ContextText: "notice", TemplateID: models.TemplateClarify, LanguageName: "English"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.ModelUsed)
	assert.Equal(t, "Review before sending.", res.Disclaimer)
	assert.Equal(t, "notice", fast.last().Content)

	_, err = svc.Draft(ctx, &models.DraftRequest{ContextText: "form", TemplateID: models.TemplateFormFilling})
	require.NoError(t, err)
	assert.Equal(t, 1, long.count(), "form filling uses the long-context backend")

	_, err = svc.Draft(ctx, &models.DraftRequest{ContextText: "notice"})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestDraftSession(t *testing.T) {
	long := &scriptedAdapter{name: "gemini-2.0-flash", out: validDraft}
	fast := &scriptedAdapter{name: "gpt-4o-mini", out: validDraft}
	svc := newDraftService(long, fast)
	ctx := context.Background()

	sess, err := svc.CreateSession(&SessionRequest{ContextText: "notice", LanguageName: "English"})
	require.NoError(t, err)
	assert.Empty(t, sess.CurrentDraft)

	turn, err := svc.SendMessage(ctx, sess.ID, models.TemplateDispute)
	require.NoError(t, err)
	assert.Equal(t, drafting.ModeGenerate, turn.Mode)
	assert.Contains(t, turn.Session.CurrentDraft, "Dear Sir or Madam")

	fast.err = errors.New("boom")
	long.err = errors.New("down")
	turn, err = svc.SendMessage(ctx, sess.ID, "make it shorter")
	require.Error(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, drafting.FailureMessage, turn.Error)
	assert.Contains(t, turn.Session.CurrentDraft, "Dear Sir or Madam", "failed turns keep the draft")

	_, err = svc.SendMessage(ctx, sess.ID, "   ")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	cancelled, err := svc.CancelSession(sess.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, svc.DeleteSession(sess.ID))
	_, err = svc.GetSession(sess.ID)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestQuotaService_Ads(t *testing.T) {
	ctx := context.Background()
	gate := quota.NewGate(quota.NewMemoryStore(), quota.Config{Location: time.UTC}, nil)
	registry := ads.NewRegistry(gate, ads.Config{RewardCountdown: 10 * time.Millisecond}, nil)
	svc := NewQuotaService(gate, registry, 0, nil)

	early, err := svc.StartAd(ctx, "dev")
	require.NoError(t, err)
	closed, err := svc.CloseAd(ctx, early.AdID)
	require.NoError(t, err)
	assert.False(t, closed.Rewarded)
	assert.Zero(t, closed.Quota.State.BonusQuota)

	ticket, err := svc.StartAd(ctx, "dev")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	closed, err = svc.CloseAd(ctx, ticket.AdID)
	require.NoError(t, err)
	assert.True(t, closed.Rewarded)
	assert.Equal(t, 1, closed.Quota.State.BonusQuota)
	assert.Equal(t, quota.FreeDailyLimit+1, closed.Quota.Remaining)

	_, err = svc.CloseAd(ctx, ticket.AdID)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = svc.StartAd(ctx, "")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	status, err := svc.SetPro(ctx, "dev", true)
	require.NoError(t, err)
	assert.True(t, status.State.IsPro)
}
