package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the HTTP routing table
type Router struct {
	handler *Handler
}

// NewRouter creates a new router around the given handler
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Routes returns the assembled HTTP handler
func (r *Router) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(corsMiddleware(r.handler.config.Server.CORSAllowedOrigins))

	mux.Get("/healthz", r.handler.Healthz)
	mux.Get("/config", r.handler.GetConfig)
	mux.Get("/ws", r.handler.HandleWebSocket)

	mux.Route("/debug", func(mux chi.Router) {
		mux.Get("/client-chunks", r.handler.GetClientChunks)
		mux.Get("/upstream-chunks", r.handler.GetUpstreamChunks)
		mux.Get("/upstream-text", r.handler.GetUpstreamText)
		mux.Get("/client-text", r.handler.GetClientText)
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// corsMiddleware applies the configured allowed-origins list. An empty
// list disables CORS headers entirely; "*" allows any origin.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
