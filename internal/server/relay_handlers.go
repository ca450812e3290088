package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dgellow/auth-relay/internal/cookie"
	"github.com/dgellow/auth-relay/internal/idp"
	jsonwriter "github.com/dgellow/auth-relay/internal/json"
	"github.com/dgellow/auth-relay/internal/log"
	"github.com/dgellow/auth-relay/internal/metrics"
	"github.com/dgellow/auth-relay/internal/relay"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
)

const tracerName = "github.com/dgellow/auth-relay/internal/server"

// maxFormBytes bounds the token exchange request body
const maxFormBytes = 64 << 10

// RelayHandlers serves the authorize, callback and token endpoints. They
// hold no per-flow state: everything a flow needs rides in RelayState or
// in the minted session token.
type RelayHandlers struct {
	provider idp.Provider
	// clientID is the relay's own registration with the provider
	clientID string
	targets  relay.Targets
	codec    *sessiontoken.Codec
	cookies  cookie.Policy
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewRelayHandlers creates relay handlers with dependency injection
func NewRelayHandlers(
	provider idp.Provider,
	clientID string,
	targets relay.Targets,
	codec *sessiontoken.Codec,
	cookies cookie.Policy,
	m *metrics.Metrics,
) *RelayHandlers {
	return &RelayHandlers{
		provider: provider,
		clientID: clientID,
		targets:  targets,
		codec:    codec,
		cookies:  cookies,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
	}
}

// Authorize validates the client's redirect target and forwards the request
// to the provider with the relay callback and a platform-tagged state
func (h *RelayHandlers) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if h.clientID == "" {
		log.LogError("Authorize called but no provider client id is configured")
		h.metrics.IncAuthorize("unknown", string(relay.ErrConfigMissing))
		relay.WriteError(w, relay.NewError(relay.ErrConfigMissing, "identity provider is not configured"))
		return
	}

	platform, ok := h.targets.Match(q.Get("redirect_uri"))
	if !ok {
		log.LogWarnWithFields("relay", "Rejected authorize request with unknown redirect_uri", map[string]any{
			"redirect_uri": q.Get("redirect_uri"),
		})
		h.metrics.IncAuthorize("unknown", string(relay.ErrInvalidRedirect))
		relay.WriteError(w, relay.NewError(relay.ErrInvalidRedirect, "redirect_uri is not an allowed client target"))
		return
	}

	if q.Get("client_id") != h.provider.Type() {
		h.metrics.IncAuthorize(platform.String(), string(relay.ErrUnsupportedClient))
		relay.WriteError(w, relay.NewError(relay.ErrUnsupportedClient, "unsupported client_id"))
		return
	}

	authURL := h.provider.AuthURL(idp.AuthRequest{
		State:               relay.EncodeState(platform, q.Get("state")),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	})

	log.LogDebugWithFields("relay", "Forwarding authorize request to provider", map[string]any{
		"platform": platform.String(),
		"provider": h.provider.Type(),
		"pkce":     q.Get("code_challenge") != "",
	})
	h.metrics.IncAuthorize(platform.String(), "ok")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback receives the provider redirect and forwards the code to the
// client surface recorded in state
func (h *RelayHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	platform, opaque, err := relay.DecodeState(q.Get("state"))
	if err != nil {
		log.LogWarnWithFields("relay", "Rejected callback with unusable state", map[string]any{
			"error": err.Error(),
		})
		h.metrics.IncCallback("unknown", errorCode(err))
		relay.WriteError(w, err)
		return
	}
	target := h.targets.For(platform)

	if providerErr := q.Get("error"); providerErr != "" {
		log.LogInfoWithFields("relay", "Provider returned an error, forwarding to client", map[string]any{
			"platform": platform.String(),
			"error":    providerErr,
		})
		h.metrics.IncCallback(platform.String(), "provider_error")
		relay.RedirectWithError(w, r, target, providerErr, q.Get("error_description"), opaque)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.metrics.IncCallback(platform.String(), string(relay.ErrMissingCode))
		relay.RedirectWithError(w, r, target, "invalid_request", "authorization code missing from provider response", opaque)
		return
	}

	h.metrics.IncCallback(platform.String(), "ok")
	http.Redirect(w, r, relay.AppendQuery(target, url.Values{
		"code":  {code},
		"state": {opaque},
	}), http.StatusFound)
}

// Token exchanges an authorization code for a session token. Web clients
// get it in an HttpOnly cookie, native clients in the body.
func (h *RelayHandlers) Token(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "relay.token_exchange", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		span.SetStatus(codes.Error, "invalid form")
		jsonwriter.WriteBadRequest(w, "invalid form body")
		return
	}

	platform := relay.PlatformFromForm(r.PostForm.Get("platform"))
	span.SetAttributes(attribute.String("relay.platform", platform.String()))

	fail := func(err *relay.Error, cause error) {
		fields := map[string]any{"platform": platform.String(), "code": string(err.Code)}
		if cause != nil {
			fields["error"] = cause.Error()
			span.RecordError(cause)
		}
		log.LogWarnWithFields("relay", "Token exchange failed", fields)
		span.SetStatus(codes.Error, string(err.Code))
		h.metrics.ObserveTokenExchange(platform.String(), string(err.Code), start)
		relay.WriteError(w, err)
	}

	code := r.PostForm.Get("code")
	if code == "" {
		fail(relay.NewError(relay.ErrMissingCode, "missing auth code"), nil)
		return
	}

	identity, err := h.provider.Exchange(ctx, code, r.PostForm.Get("code_verifier"))
	if err != nil {
		msg := "failed to retrieve ID token"
		if errors.Is(err, idp.ErrIDTokenInvalid) {
			msg = "ID token failed verification"
		}
		fail(relay.NewError(relay.ErrUpstreamExchangeFailed, msg), err)
		return
	}

	token, claims, err := h.codec.Mint(identity)
	if err != nil {
		log.LogErrorWithFields("relay", "Failed to mint session token", map[string]any{
			"error": err.Error(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, "mint failed")
		h.metrics.ObserveTokenExchange(platform.String(), "mint_failed", start)
		jsonwriter.WriteInternalServerError(w, "internal error")
		return
	}

	log.LogInfoWithFields("relay", "Session token issued", map[string]any{
		"platform": platform.String(),
		"subject":  claims.Subject,
		"jti":      claims.ID,
	})
	span.SetStatus(codes.Ok, "")
	h.metrics.ObserveTokenExchange(platform.String(), "ok", start)

	if platform == relay.PlatformWeb {
		h.cookies.SetSession(w, token)
		_ = jsonwriter.WriteNoStore(w, map[string]any{
			"success":   true,
			"issuedAt":  claims.IssuedAt.Unix(),
			"expiresAt": claims.ExpiresAt.Unix(),
		})
		return
	}

	_ = jsonwriter.WriteNoStore(w, map[string]any{
		"accessToken": token,
	})
}

// errorCode returns the relay error code of err, for metric labels
func errorCode(err error) string {
	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		return string(relayErr.Code)
	}
	return "internal"
}
