package server

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	jsonwriter "github.com/dgellow/auth-relay/internal/json"
)

// Paths served by the relay
const (
	PathAuthorize = "/api/auth/authorize"
	PathCallback  = "/api/auth/callback"
	PathToken     = "/api/auth/token"
	PathSession   = "/api/auth/session"
	PathLogout    = "/api/auth/logout"
	PathProtected = "/api/protected"
)

// RouterConfig holds everything the router mounts
type RouterConfig struct {
	Relay    *RelayHandlers
	Session  *SessionHandlers
	Guard    *Guard
	Metrics  http.Handler
	BaseURL  string
	Origins  []string
	LogLabel string
}

// NewRouter builds the relay's HTTP handler
func NewRouter(cfg RouterConfig) http.Handler {
	origins := cfg.Origins
	if len(origins) == 0 {
		if o := originOf(cfg.BaseURL); o != "" {
			origins = []string{o}
		}
	}
	label := cfg.LogLabel
	if label == "" {
		label = "http"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(label))
	r.Use(NewRecoverMiddleware(label))
	r.Use(NewCORSMiddleware(origins))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteMethodNotAllowed(w)
	})

	r.Method(http.MethodGet, "/health", NewHealthHandler())
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Get(PathAuthorize, cfg.Relay.Authorize)
	r.Get(PathCallback, cfg.Relay.Callback)
	r.Post(PathToken, cfg.Relay.Token)

	r.Get(PathSession, cfg.Guard.Wrap(cfg.Session.Session))
	r.Post(PathLogout, cfg.Session.Logout)

	r.Route(PathProtected, func(pr chi.Router) {
		pr.Get("/data", cfg.Guard.Wrap(cfg.Session.ProtectedData))
	})

	return r
}

// originOf reduces a base URL to scheme://host
func originOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
