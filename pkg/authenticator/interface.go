package authenticator

import (
	"context"
	"time"
)

// OAuth2User is the normalized profile returned by an identity provider
// after a successful authorization code exchange.
type OAuth2User struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string

	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

type IOAuth2Service interface {
	// Service returns the provider name, e.g. GOOGLE.
	Service() string

	// RequireState reports whether the login must present the state issued by
	// AuthCodeURL.
	RequireState() bool

	AuthCodeURL(state string) string

	VerifyAuthorizationCode(ctx context.Context, code, state string) (OAuth2User, error)
}
