// Package api exposes the webhook endpoints that feed the pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/recovery-sync/internal/monitoring"
	"github.com/sells-group/recovery-sync/internal/pipeline"
)

// MaxBodyBytes caps an inbound webhook body.
const MaxBodyBytes = 10 << 20

// Processor handles one raw event.
type Processor interface {
	Process(ctx context.Context, raw any, project, source string) *pipeline.Result
}

// Options configures the router.
type Options struct {
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter builds the HTTP handler for the webhook service.
func NewRouter(proc Processor, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = MaxBodyBytes
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handler{proc: proc, maxBody: opts.MaxBodyBytes, log: zap.L().With(zap.String("component", "api"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", monitoring.Handler())

	r.Post("/webhook", h.webhook)
	r.Post("/webhook/{project}", h.webhook)
	return r
}

type handler struct {
	proc    Processor
	maxBody int64
	log     *zap.Logger
}

type webhookResponse struct {
	Status string `json:"status"`
	*pipeline.Result
}

func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	log := h.log.With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path_project", project),
	)

	var raw any
	// Numbers stay json.Number so large ids and exact amounts reach the
	// ledger's raw payload unrounded.
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("webhook body too large", zap.Int64("limit", tooLarge.Limit))
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		log.Warn("webhook body is not valid JSON", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	log.Info("webhook received")
	// The event source always gets an acknowledgment; sink outcomes are
	// reported in the body, never as an error status. Writes finish even if
	// the caller hangs up.
	res := h.proc.Process(context.WithoutCancel(r.Context()), raw, project, pipeline.SourceWebhook)
	writeJSON(w, http.StatusOK, webhookResponse{Status: "ok", Result: res})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
