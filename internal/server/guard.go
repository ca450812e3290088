package server

import (
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dgellow/auth-relay/internal/cookie"
	"github.com/dgellow/auth-relay/internal/log"
	"github.com/dgellow/auth-relay/internal/metrics"
	"github.com/dgellow/auth-relay/internal/relay"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
)

// GuardedHandlerFunc is a handler that runs only for a verified session
type GuardedHandlerFunc func(w http.ResponseWriter, r *http.Request, claims *sessiontoken.Claims)

// Guard admits requests carrying a session token this relay minted
type Guard struct {
	codec   *sessiontoken.Codec
	cookies cookie.Policy
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewGuard(codec *sessiontoken.Codec, cookies cookie.Policy, m *metrics.Metrics) *Guard {
	return &Guard{
		codec:   codec,
		cookies: cookies,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}
}

// Wrap verifies the session token and calls next with its claims. The
// response of next is returned unchanged.
func (g *Guard) Wrap(next GuardedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "relay.guard")
		defer span.End()

		token, source := g.extractToken(r)
		if token == "" {
			span.SetStatus(codes.Error, string(relay.ErrUnauthenticated))
			g.metrics.IncGuard("missing")
			relay.WriteError(w, relay.NewError(relay.ErrUnauthenticated, "no session token"))
			return
		}
		span.SetAttributes(attribute.String("relay.token_source", source))

		claims, err := g.codec.Verify(token)
		if err != nil {
			code, result := relay.ErrInvalidToken, "invalid"
			if errors.Is(err, sessiontoken.ErrTokenExpired) {
				code, result = relay.ErrTokenExpired, "expired"
			}
			log.LogDebugWithFields("guard", "Rejected session token", map[string]any{
				"source": source,
				"reason": result,
				"path":   r.URL.Path,
			})
			span.SetStatus(codes.Error, string(code))
			g.metrics.IncGuard(result)
			relay.WriteError(w, relay.NewError(code, err.Error()))
			return
		}

		span.SetAttributes(attribute.String("relay.subject", claims.Subject))
		g.metrics.IncGuard("ok")
		next(w, r.WithContext(ctx), claims)
	}
}

// extractToken prefers the Authorization header, then the session cookie
func (g *Guard) extractToken(r *http.Request) (token, source string) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), "bearer"
		}
	}
	if v, err := g.cookies.GetSession(r); err == nil && v != "" {
		return v, "cookie"
	}
	return "", ""
}
