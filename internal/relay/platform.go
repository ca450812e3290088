package relay

import "fmt"

// Platform is the client surface a flow started from. It decides the
// redirect target and how the session token is delivered.
type Platform int

const (
	PlatformNative Platform = iota
	PlatformWeb
)

// State tags as they appear inside RelayState
const (
	tagNative = "mobile"
	tagWeb    = "web"
)

func (p Platform) String() string {
	switch p {
	case PlatformWeb:
		return "web"
	case PlatformNative:
		return "native"
	default:
		return fmt.Sprintf("Platform(%d)", int(p))
	}
}

// Tag returns the wire tag used in RelayState
func (p Platform) Tag() string {
	if p == PlatformWeb {
		return tagWeb
	}
	return tagNative
}

// ParseTag maps a RelayState tag back to a platform
func ParseTag(tag string) (Platform, bool) {
	switch tag {
	case tagWeb:
		return PlatformWeb, true
	case tagNative:
		return PlatformNative, true
	default:
		return 0, false
	}
}

// PlatformFromForm reads the optional platform field of a token request.
// Anything other than "web" is native.
func PlatformFromForm(value string) Platform {
	if value == "web" {
		return PlatformWeb
	}
	return PlatformNative
}

// Targets are the two client surfaces the relay will redirect to
type Targets struct {
	Native string
	Web    string
}

// Match resolves a client-supplied redirect_uri. Only exact matches count.
func (t Targets) Match(redirectURI string) (Platform, bool) {
	switch {
	case redirectURI == "":
		return 0, false
	case redirectURI == t.Native:
		return PlatformNative, true
	case redirectURI == t.Web:
		return PlatformWeb, true
	default:
		return 0, false
	}
}

// For returns the redirect target for a platform
func (t Targets) For(p Platform) string {
	if p == PlatformWeb {
		return t.Web
	}
	return t.Native
}
