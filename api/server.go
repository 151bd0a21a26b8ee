/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: zap access log (middleware.go)
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for an external frontend

ROUTE GROUPS:
  /api/summary, /api/projections, /api/totals   Overview
  /api/buckets/*                                Per-bucket detail
  /api/refresh, /api/refreshes                  Data freshness
  /healthz                                      Liveness
  /*                                            Landing page

SECURITY NOTE:
  No authentication middleware. Every endpoint is read-only except
  POST /api/refresh, which only reloads the source.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// An empty allowedOrigins allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(allowedOrigins)))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", h.GetSummary)
		r.Get("/projections", h.GetProjections)
		r.Get("/totals", h.GetTotals)

		// Bucket routes
		r.Route("/buckets", func(r chi.Router) {
			r.Get("/", h.ListBuckets)
			r.Get("/{bucket}", h.GetBucket)
			r.Get("/{bucket}/trend", h.GetBucketTrend)
			r.Get("/{bucket}/forecast", h.GetBucketForecast)
		})

		r.Post("/refresh", h.RefreshTable)
		r.Get("/refreshes", h.ListRefreshRuns)
	})

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingPage))
	})

	return r
}

func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			return opts
		}
	}
	opts.AllowCredentials = true
	return opts
}

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Goal Attainment Dashboard</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Goal Attainment Dashboard API</h1>
<p>Month-to-date targets, actuals and end-of-month projections per aging bucket.</p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/summary">/api/summary</a> - Target vs. actual overview</li>
<li><a href="/api/projections">/api/projections</a> - Projections per bucket</li>
<li><a href="/api/totals">/api/totals</a> - Totals and history series</li>
<li><a href="/api/buckets">/api/buckets</a> - Configured buckets</li>
<li><a href="/api/refreshes">/api/refreshes</a> - Recent data loads</li>
</ul>
<p>Add <code>?days=N</code> to override the days remaining in the month.</p>
</body>
</html>`
