package sessiontoken

import "time"

// User is the client-visible projection of session claims. The signed
// token stays the authority.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Locale        string `json:"locale,omitempty"`
	HostedDomain  string `json:"hd,omitempty"`
	Provider      string `json:"provider,omitempty"`
	ExpiresAt     int64  `json:"exp,omitempty"`
}

func (c *Claims) User() User {
	u := User{
		ID:            c.Subject,
		Email:         c.Email,
		Name:          c.Name,
		Picture:       c.Picture,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		EmailVerified: c.EmailVerified,
		Locale:        c.Locale,
		HostedDomain:  c.HostedDomain,
		Provider:      c.Provider,
	}
	if c.ExpiresAt != nil {
		u.ExpiresAt = c.ExpiresAt.Unix()
	}
	return u
}

// Expired reports whether exp has been reached at now
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Time)
}
