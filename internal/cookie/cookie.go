package cookie

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/auth-relay/internal/config"
	"github.com/dgellow/auth-relay/internal/log"
)

// Policy describes how the session cookie is written and read
type Policy struct {
	Name     string
	Path     string
	MaxAge   time.Duration
	SameSite http.SameSite
	Secure   bool
}

// NewPolicy builds a cookie policy from resolved config. Defaults must
// already be applied.
func NewPolicy(cfg config.CookieConfig) Policy {
	p := Policy{
		Name:     cfg.Name,
		Path:     cfg.Path,
		MaxAge:   cfg.MaxAge,
		SameSite: parseSameSite(cfg.SameSite),
	}
	if cfg.Secure != nil {
		p.Secure = *cfg.Secure
	}
	return p
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return "Lax"
	}
}

// SetSession sets the HttpOnly session cookie carrying a session token
func (p Policy) SetSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    token,
		Path:     p.Path,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
		MaxAge:   int(p.MaxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"name":     p.Name,
		"maxAge":   p.MaxAge.String(),
		"secure":   p.Secure,
		"sameSite": sameSiteName(p.SameSite),
	})
}

// ClearSession removes the session cookie. Attributes mirror SetSession so
// browsers match and drop the existing cookie.
func (p Policy) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    "",
		Path:     p.Path,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
		MaxAge:   -1,
	})
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// GetSession retrieves the session cookie value
func (p Policy) GetSession(r *http.Request) (string, error) {
	c, err := r.Cookie(p.Name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}
