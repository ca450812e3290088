package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dgellow/auth-relay/internal/log"
)

// ResponseKind is the outcome of an interactive authorization
type ResponseKind int

const (
	ResponseSuccess ResponseKind = iota
	ResponseError
	// ResponseDismiss means the user closed the browser without finishing
	ResponseDismiss
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseSuccess:
		return "success"
	case ResponseError:
		return "error"
	case ResponseDismiss:
		return "dismiss"
	default:
		return fmt.Sprintf("ResponseKind(%d)", int(k))
	}
}

// AuthError is an OAuth error carried back on the redirect
type AuthError struct {
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// AuthResponse is what arrives on the client's redirect URI
type AuthResponse struct {
	Kind   ResponseKind
	Params url.Values
	Err    *AuthError
}

// ParseRedirect classifies the query of a redirect back to the client
func ParseRedirect(query url.Values) AuthResponse {
	if code := query.Get("error"); code != "" {
		return AuthResponse{
			Kind:   ResponseError,
			Params: query,
			Err:    &AuthError{Code: code, Description: query.Get("error_description")},
		}
	}
	return AuthResponse{Kind: ResponseSuccess, Params: query}
}

// Launcher runs the interactive browser leg of a sign-in: it sends the user
// to authURL and waits for the redirect to redirectURI
type Launcher interface {
	Launch(ctx context.Context, authURL, redirectURI string) (AuthResponse, error)
}

// LoopbackLauncher receives the redirect on a local HTTP listener, for
// command line clients whose app scheme is a loopback URL
type LoopbackLauncher struct {
	// Open hands the URL to a browser; when nil the URL is only printed
	Open func(authURL string) error
	Out  io.Writer
}

// Launch serves redirectURI's host until the first request on its path
func (l *LoopbackLauncher) Launch(ctx context.Context, authURL, redirectURI string) (AuthResponse, error) {
	target, err := url.Parse(redirectURI)
	if err != nil || target.Host == "" {
		return AuthResponse{}, fmt.Errorf("redirect URI %q is not a loopback URL", redirectURI)
	}
	path := target.Path
	if path == "" {
		path = "/"
	}

	ln, err := net.Listen("tcp", target.Host)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("listening for redirect: %w", err)
	}

	results := make(chan AuthResponse, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		resp := ParseRedirect(r.URL.Query())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if resp.Kind == ResponseError {
			_, _ = io.WriteString(w, "Sign-in failed. You can close this window.\n")
		} else {
			_, _ = io.WriteString(w, "Signed in. You can close this window.\n")
		}
		select {
		case results <- resp:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogErrorWithFields("client", "Loopback listener failed", map[string]any{
				"error": err.Error(),
			})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if l.Out != nil {
		fmt.Fprintf(l.Out, "Open this URL to sign in:\n\n  %s\n\n", authURL)
	}
	if l.Open != nil {
		if err := l.Open(authURL); err != nil {
			log.LogWarnWithFields("client", "Could not open browser", map[string]any{
				"error": err.Error(),
			})
		}
	}

	select {
	case resp := <-results:
		return resp, nil
	case <-ctx.Done():
		return AuthResponse{Kind: ResponseDismiss}, ctx.Err()
	}
}
