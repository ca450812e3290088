package relay

import "strings"

// StateSeparator joins the platform tag and the caller's opaque state
const StateSeparator = "|"

// EncodeState builds the RelayState sent to the identity provider.
// Tags never contain the separator, so the first separator always ends the
// tag and opaque may contain anything, including the separator.
func EncodeState(p Platform, opaque string) string {
	return p.Tag() + StateSeparator + opaque
}

// DecodeState splits a RelayState at its first separator
func DecodeState(state string) (Platform, string, error) {
	if state == "" {
		return 0, "", NewError(ErrMissingState, "state parameter is required")
	}
	tag, opaque, found := strings.Cut(state, StateSeparator)
	if !found {
		return 0, "", NewError(ErrInvalidState, "state is missing the platform tag")
	}
	p, ok := ParseTag(tag)
	if !ok {
		return 0, "", NewError(ErrInvalidState, "unknown platform tag")
	}
	return p, opaque, nil
}
