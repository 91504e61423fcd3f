package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/contract-risk-analyzer/internal/config"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
	"github.com/kirillkom/contract-risk-analyzer/internal/observability/metrics"
)

const (
	maxUploadBytes     = 8 << 20
	maxInFlight        = 64
	backpressureWait   = 250 * time.Millisecond
	defaultEventBuffer = 256
)

// RouterOptions carries the optional collaborators. A nil Enqueuer disables uploads,
// a nil History disables the snapshot listing.
type RouterOptions struct {
	Enqueuer ports.AnalysisEnqueuer
	Exporter ports.ReportExporter
	History  ports.SnapshotHistory
	Metrics  *metrics.HTTPServerMetrics
}

type Router struct {
	cfg      config.Config
	analysis ports.AnalysisService
	enqueuer ports.AnalysisEnqueuer
	exporter ports.ReportExporter
	history  ports.SnapshotHistory
	metrics  *metrics.HTTPServerMetrics
	spec     *apiSpec
}

func NewRouter(cfg config.Config, analysis ports.AnalysisService, opts RouterOptions) (*Router, error) {
	spec, err := loadAPISpec()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:      cfg,
		analysis: analysis,
		enqueuer: opts.Enqueuer,
		exporter: opts.Exporter,
		history:  opts.History,
		metrics:  opts.Metrics,
		spec:     spec,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.json", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/analyses", rt.startAnalysis)
	mux.HandleFunc("GET /v1/analyses", rt.listAnalyses)
	mux.HandleFunc("GET /v1/analyses/{document_id}", rt.getAnalysis)
	mux.HandleFunc("POST /v1/analyses/{document_id}/retry", rt.retryAnalysis)
	mux.HandleFunc("POST /v1/analyses/{document_id}/accept-partial", rt.acceptPartial)
	mux.HandleFunc("GET /v1/analyses/{document_id}/report.xlsx", rt.downloadReport)
	mux.HandleFunc("GET /v1/foreground", rt.getForeground)
	mux.HandleFunc("PUT /v1/foreground", rt.setForeground)
	mux.HandleFunc("GET /v1/events", rt.streamEvents)
	mux.HandleFunc("POST /v1/uploads", rt.uploadDocument)
	mux.HandleFunc("GET /v1/snapshots", rt.listSnapshots)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, maxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRateLimited)
	handler = accessLogMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rt.spec.json)
}

func (rt *Router) startAnalysis(w http.ResponseWriter, r *http.Request) {
	var req domain.StartRequest
	if err := rt.spec.decodeBody(r, "StartAnalysisRequest", &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	track, err := rt.analysis.StartAnalysis(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, track)
}

func (rt *Router) listAnalyses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tracks": rt.analysis.List()})
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	track, err := rt.analysis.Get(r.Context(), r.PathValue("document_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (rt *Router) retryAnalysis(w http.ResponseWriter, r *http.Request) {
	track, err := rt.analysis.RetryFromFailure(r.Context(), r.PathValue("document_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, track)
}

func (rt *Router) acceptPartial(w http.ResponseWriter, r *http.Request) {
	track, err := rt.analysis.AcceptPartial(r.Context(), r.PathValue("document_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, track)
}

func (rt *Router) downloadReport(w http.ResponseWriter, r *http.Request) {
	if rt.exporter == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrConfiguration, "download report", errors.New("report export is not configured")))
		return
	}
	documentID := r.PathValue("document_id")
	track, err := rt.analysis.Get(r.Context(), documentID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := rt.exporter.Export(&buf, domain.TrackSnapshot{Track: track}); err != nil {
		rt.writeError(w, r, fmt.Errorf("export report: %w", err))
		return
	}

	w.Header().Set("Content-Type", rt.exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-risk-report.%s"`, sanitizeHeaderToken(documentID), rt.exporter.Extension()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) getForeground(w http.ResponseWriter, _ *http.Request) {
	track, ok := rt.analysis.Foreground()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (rt *Router) setForeground(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := rt.spec.decodeBody(r, "SetForegroundRequest", &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	track, err := rt.analysis.SetForeground(r.Context(), req.DocumentID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if track == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.enqueuer == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrConfiguration, "upload document", errors.New("background queue is not configured")))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart body is invalid or too large")))
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	req, err := rt.enqueuer.Enqueue(r.Context(), fileHeader.Filename, file, formKnownRisks(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (rt *Router) listSnapshots(w http.ResponseWriter, r *http.Request) {
	if rt.history == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrConfiguration, "list snapshots", errors.New("snapshot history is not configured")))
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "list snapshots", errors.New("limit must be between 1 and 500")))
			return
		}
		limit = n
	}

	items, err := rt.history.ListRecent(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": items})
}

func (rt *Router) recordRateLimited(r *http.Request) {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited("api", r.URL.Path)
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": errorKind(err)})
}

// formKnownRisks accepts known_risks as repeated fields or as one newline separated field.
func formKnownRisks(r *http.Request) []string {
	if r.MultipartForm == nil {
		return nil
	}
	var out []string
	for _, value := range r.MultipartForm.Value["known_risks"] {
		for _, line := range strings.Split(value, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

func sanitizeHeaderToken(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, value)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
