package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ingest/validator"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/runs"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

// FileField is the multipart field carrying the archive.
const FileField = "zip_file"

// memory kept by multipart parsing before spilling to disk.
const multipartMemory = 32 << 20

// RunLister reads the ingestion run ledger. *runs.Ledger implements it.
type RunLister interface {
	List(ctx context.Context, limit, offset int) ([]runs.Run, error)
	Get(ctx context.Context, id string) (*runs.Run, error)
}

// CacheAdmin exposes the query cache. *search.QueryCache implements it.
type CacheAdmin interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) (int64, error)
}

type Handler struct {
	svc       *service.Service
	validator *validator.Validator
	runs      RunLister
	cache     CacheAdmin
	analytics *analytics.Handler
	health    *health.Checker
	limiter   *ratelimit.Limiter
	// peers allowed to name the client in X-Forwarded-For
	trustedProxies []netip.Prefix
	page           *template.Template
	logger         *slog.Logger
}

type Option func(*Handler)

func WithRuns(r RunLister) Option {
	return func(h *Handler) { h.runs = r }
}

func WithCache(c CacheAdmin) Option {
	return func(h *Handler) { h.cache = c }
}

func WithAnalytics(a *analytics.Handler) Option {
	return func(h *Handler) { h.analytics = a }
}

func WithHealth(c *health.Checker) Option {
	return func(h *Handler) { h.health = c }
}

// WithUploadLimit bounds how often one client may upload an archive. Only
// requests that carry a file are counted.
func WithUploadLimit(l *ratelimit.Limiter, trustedProxies ...netip.Prefix) Option {
	return func(h *Handler) {
		h.limiter = l
		h.trustedProxies = trustedProxies
	}
}

func NewHandler(svc *service.Service, v *validator.Validator, opts ...Option) *Handler {
	h := &Handler{
		svc:       svc,
		validator: v,
		page:      template.Must(template.ParseFS(templateFS, "templates/index.html")),
		logger:    slog.Default().With("component", "web"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ---------- Page handlers ----------

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, service.View{})
}

// SearchPage renders the results of ?q= against the current snapshot.
func (h *Handler) SearchPage(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("q") {
		h.render(w, r, http.StatusOK, service.View{})
		return
	}
	h.render(w, r, http.StatusOK, h.svc.Search(r.Context(), r.URL.Query().Get("q")))
}

// SearchForm handles the page form: an archive plus a query ingests then
// searches the fresh snapshot, a query alone searches the current one.
func (h *Handler) SearchForm(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	query := r.FormValue("query")
	switch {
	case err != nil:
		h.render(w, r, apperrors.HTTPStatusCode(err), service.View{Query: query, Error: apperrors.UserMessage(err)})
	case name == "" && data == nil:
		h.render(w, r, http.StatusOK, h.svc.Search(r.Context(), query))
	default:
		h.render(w, r, http.StatusOK, h.svc.IngestAndSearch(r.Context(), name, data, query))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, view service.View) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.page.Execute(w, view); err != nil {
		logger.FromContext(r.Context()).Error("failed to render page", "error", err)
	}
}

// ---------- API handlers ----------

type ingestResponse struct {
	RunID      string         `json:"run_id"`
	Archive    string         `json:"archive"`
	Status     string         `json:"status"`
	Stats      pipeline.Stats `json:"stats"`
	Failures   []failedEntry  `json:"failures"`
	Message    string         `json:"message"`
	DurationMs int64          `json:"duration_ms"`
}

type failedEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Ingest runs the pipeline over an uploaded archive and reports the run.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.RunIngest(r.Context(), name, data)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := ingestResponse{
		RunID:      res.RunID,
		Archive:    res.Archive,
		Status:     string(res.Status),
		Stats:      res.Stats,
		Failures:   make([]failedEntry, 0),
		Message:    service.UploadMessage(res),
		DurationMs: res.Duration.Milliseconds(),
	}
	for _, f := range res.Failures() {
		resp.Failures = append(resp.Failures, failedEntry{Index: f.Index, Name: f.Name, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results, err := h.svc.Query(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusNotFound, "run ledger is not enabled"))
		return
	}
	limit := queryInt(r, "limit", 20, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 1<<31-1)
	list, err := h.runs.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   list,
		"count":  len(list),
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusNotFound, "run ledger is not enabled"))
		return
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusNotFound, "run not found"))
		return
	}
	run, err := h.runs.Get(r.Context(), id)
	if errors.Is(err, runs.ErrRunNotFound) {
		writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusNotFound, "run not found"))
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch run", "id", id, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusNotFound, "analytics is not enabled"))
		return
	}
	h.analytics.Stats(w, r)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	hits, misses := h.cache.Stats()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  true,
		"hits":     hits,
		"misses":   misses,
		"hit_rate": rate,
	})
}

func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "keys_deleted": 0})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "keys_deleted": deleted})
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
		return
	}
	h.health.LiveHandler()(w, r)
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(health.StatusUp)})
		return
	}
	h.health.ReadyHandler()(w, r)
}

// ---------- Helpers ----------

// readUpload returns the archive from the multipart body. A request without
// a file part yields an empty name and nil data and is not rate limited.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	if limit := h.validator.MaxBytes(); limit > 0 {
		// room for the multipart envelope and the query field
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return "", nil, nil
		}
		return "", nil, h.uploadError(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(FileField)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, h.uploadError(err)
	}
	defer file.Close()
	if err := h.admitUpload(w, r); err != nil {
		return "", nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, h.uploadError(err)
	}
	return header.Filename, data, nil
}

func (h *Handler) uploadError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return h.validator.TooLarge()
	}
	return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "Could not read the uploaded file.")
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// writeError answers with the status mapped from err and its user message.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.UserMessage(err)})
}
