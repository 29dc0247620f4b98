// Package web serves the upload-and-search page and the JSON API over the
// service layer.
package web

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/middleware"
)

// RouterConfig carries the cross-cutting pieces of the middleware chain.
// Zero values disable the corresponding middleware.
type RouterConfig struct {
	Metrics *metrics.Metrics
	Timeout time.Duration
	CORS    CORSConfig
}

// NewRouter builds the HTTP handler.
//
// Route table:
//
//	GET    /                          upload and search page
//	GET    /search?q=                 search the current snapshot (page)
//	POST   /search                    upload an archive and/or search (page)
//	POST   /api/v1/ingest             ingest an archive
//	GET    /api/v1/search?q=          search the current snapshot
//	GET    /api/v1/runs               list ingestion runs
//	GET    /api/v1/runs/{id}          one run with its failed entries
//	GET    /api/v1/analytics          search and ingest statistics
//	GET    /api/v1/cache/stats        query cache counters
//	POST   /api/v1/cache/invalidate   drop cached query results
//	GET    /health/live               liveness
//	GET    /health/ready              readiness
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → mux
//
// Upload rate limiting happens in the handlers, once a file part is seen.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /search", h.SearchPage)
	mux.HandleFunc("POST /search", h.SearchForm)

	mux.HandleFunc("POST /api/v1/ingest", h.Ingest)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)
	mux.HandleFunc("GET /api/v1/analytics", h.Analytics)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.InvalidateCache)

	mux.HandleFunc("GET /health/live", h.Live)
	mux.HandleFunc("GET /health/ready", h.Ready)

	var chain http.Handler = mux
	chain = pkgmw.Timeout(cfg.Timeout)(chain)
	chain = pkgmw.Metrics(cfg.Metrics)(chain)
	if len(cfg.CORS.AllowOrigins) > 0 {
		chain = CORS(cfg.CORS)(chain)
	}
	chain = pkgmw.RequestID(chain)
	return chain
}
