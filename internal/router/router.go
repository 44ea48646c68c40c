package router

import (
	"net/http"

	"github.com/DocExplain/DocExplain-app/internal/handlers"
	"github.com/DocExplain/DocExplain-app/internal/metrics"
	"github.com/DocExplain/DocExplain-app/internal/middleware"
	"github.com/DocExplain/DocExplain-app/internal/services"
	"github.com/DocExplain/DocExplain-app/internal/utils"

	"github.com/gorilla/mux"
)

type Services struct {
	Analysis services.AnalysisService
	Draft    services.DraftService
	Quota    services.QuotaService
}

type Options struct {
	AllowedOrigins []string
	MaxBodySize    int64
	MaxFileSize    int64
	// RateLimiter guards the routes that call a backend. Nil disables it.
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Metrics
	// EntitlementToken guards PUT /quota/{deviceId}/pro, which only the
	// purchase backend may call. Empty disables the route.
	EntitlementToken string
}

func NewRouter(svc Services, opts Options, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.Logger(logger, opts.Metrics))
	r.Use(middleware.BodyLimit(opts.MaxBodySize))

	analysisHandler := handlers.NewAnalysisHandler(svc.Analysis, opts.MaxFileSize, logger)
	draftHandler := handlers.NewDraftHandler(svc.Draft, logger)
	quotaHandler := handlers.NewQuotaHandler(svc.Quota, logger)

	limited := func(h http.HandlerFunc) http.Handler {
		if opts.RateLimiter == nil {
			return h
		}
		return opts.RateLimiter.Middleware(h)
	}
	entitled := middleware.RequireToken(opts.EntitlementToken)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	// The web client calls the same routes under /api.
	for _, base := range []*mux.Router{r, r.PathPrefix("/api").Subrouter()} {
		base.Handle("/analyze", limited(analysisHandler.Analyze)).Methods(http.MethodPost)
		base.Handle("/analyze/upload", limited(analysisHandler.AnalyzeUpload)).Methods(http.MethodPost)
		base.Handle("/draft", limited(draftHandler.Draft)).Methods(http.MethodPost)

		base.HandleFunc("/draft/sessions", draftHandler.CreateSession).Methods(http.MethodPost)
		base.HandleFunc("/draft/sessions/{id}", draftHandler.GetSession).Methods(http.MethodGet)
		base.HandleFunc("/draft/sessions/{id}", draftHandler.DeleteSession).Methods(http.MethodDelete)
		base.Handle("/draft/sessions/{id}/messages", limited(draftHandler.SendMessage)).Methods(http.MethodPost)
		base.HandleFunc("/draft/sessions/{id}/cancel", draftHandler.CancelSession).Methods(http.MethodPost)

		base.HandleFunc("/quota/{deviceId}", quotaHandler.GetQuota).Methods(http.MethodGet)
		base.Handle("/quota/{deviceId}/pro", entitled(http.HandlerFunc(quotaHandler.SetPro))).Methods(http.MethodPut)
		base.HandleFunc("/quota/{deviceId}/ads", quotaHandler.StartAd).Methods(http.MethodPost)
		base.HandleFunc("/ads/{adId}/close", quotaHandler.CloseAd).Methods(http.MethodPost)

		base.HandleFunc("/history", analysisHandler.ListHistory).Methods(http.MethodGet)
		base.HandleFunc("/history/{id}", analysisHandler.GetHistory).Methods(http.MethodGet)
		base.HandleFunc("/history/{id}/original", analysisHandler.GetOriginal).Methods(http.MethodGet)
		base.HandleFunc("/history/{id}", analysisHandler.DeleteHistory).Methods(http.MethodDelete)
	}

	// CORS and recovery wrap the router so preflight requests are answered
	// before route method matching.
	var h http.Handler = r
	h = middleware.CORS(opts.AllowedOrigins)(h)
	h = middleware.Recovery(logger)(h)
	return h
}
