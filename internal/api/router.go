package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skyspot/skyspot/internal/config"
)

// Router builds the HTTP routing tree around a Handler.
type Router struct {
	handler *Handler
	cfg     *config.Config
}

func NewRouter(handler *Handler, cfg *config.Config) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Routes returns the assembled handler for the HTTP server.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(rt.cfg.Server.CORSAllowedOrigins))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/aircraft", rt.handler.GetAllAircraft)
		r.Get("/aircraft/{hex}", rt.handler.GetAircraftByHex)
		r.Get("/target", rt.handler.GetTarget)
		r.Get("/sightings", rt.handler.GetSightings)
		r.Get("/sightings/{hex}", rt.handler.GetSightingsByAircraft)
		r.Get("/status", rt.handler.GetStatus)
	})

	r.Get("/ws", rt.handler.HandleWebSocket)

	return r
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool)
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
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
