package server

import (
	"net/http"
	"time"

	"github.com/dgellow/auth-relay/internal/cookie"
	jsonwriter "github.com/dgellow/auth-relay/internal/json"
	"github.com/dgellow/auth-relay/internal/log"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
)

// SessionHandlers serves session introspection, logout and the sample
// protected resource
type SessionHandlers struct {
	cookies cookie.Policy
	now     func() time.Time
}

func NewSessionHandlers(cookies cookie.Policy) *SessionHandlers {
	return &SessionHandlers{cookies: cookies, now: time.Now}
}

// Session returns the user behind a valid session token. Mounted behind the guard.
func (h *SessionHandlers) Session(w http.ResponseWriter, r *http.Request, claims *sessiontoken.Claims) {
	resp := map[string]any{
		"user": claims.User(),
	}
	if claims.IssuedAt != nil {
		resp["issuedAt"] = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		resp["expiresAt"] = claims.ExpiresAt.Unix()
	}
	_ = jsonwriter.WriteNoStore(w, resp)
}

// Logout clears the session cookie. Tokens are not revocable, so a
// native client signs out by forgetting its token.
func (h *SessionHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearSession(w)
	log.LogDebugWithFields("session", "Session cookie cleared on logout", nil)
	_ = jsonwriter.WriteNoStore(w, map[string]any{"success": true})
}

// ProtectedData is the sample guarded resource
func (h *SessionHandlers) ProtectedData(w http.ResponseWriter, r *http.Request, claims *sessiontoken.Claims) {
	_ = jsonwriter.Write(w, map[string]any{
		"data": map[string]any{
			"secretMessage": "This is protected data!",
			"timestamp":     h.now().UTC().Format(time.RFC3339),
		},
		"user": map[string]any{
			"name":  claims.Name,
			"email": claims.Email,
		},
	})
}
