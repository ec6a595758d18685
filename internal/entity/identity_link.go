package entity

import (
	"database/sql"
	"strings"
	"time"

	"github.com/studymate/backend/pkg/enum"
)

type Provider string

var (
	GoogleProvider   = enum.New(Provider("GOOGLE"), "GOOGLE")
	NaverProvider    = enum.New(Provider("NAVER"), "NAVER")
	KakaoProvider    = enum.New(Provider("KAKAO"), "KAKAO")
	FacebookProvider = enum.New(Provider("FACEBOOK"), "FACEBOOK")
	AppleProvider    = enum.New(Provider("APPLE"), "APPLE")
)

var defaultScopes = map[Provider]string{
	GoogleProvider:   "openid email profile",
	NaverProvider:    "name email profile_image",
	KakaoProvider:    "profile_nickname profile_image account_email",
	FacebookProvider: "email public_profile",
	AppleProvider:    "name email",
}

// ParseProvider accepts a provider name in any case.
func ParseProvider(s string) (Provider, error) {
	return enum.ToEnum[Provider](strings.ToUpper(s))
}

func (p Provider) DefaultScope() string {
	return defaultScopes[p]
}

// IdentityLink binds an external (provider, subject) pair to an account. The
// pair is unique across all accounts.
type IdentityLink struct {
	Base
	AccountID string  `gorm:"index;not null"`
	Account   Account `gorm:"foreignKey:AccountID"`

	Provider  Provider `gorm:"uniqueIndex:idx_identity_links_provider_subject;size:32;not null"`
	SubjectID string   `gorm:"uniqueIndex:idx_identity_links_provider_subject;size:255;not null"`

	Email       string
	DisplayName string
	AvatarURL   string

	AccessToken    string
	RefreshToken   string
	TokenExpiresAt sql.NullTime
	Scope          string

	IsPrimary   bool
	IsActive    bool
	LastLoginAt sql.NullTime
}

func NewIdentityLink(accountID string, provider Provider, subjectID string) IdentityLink {
	return IdentityLink{
		AccountID: accountID,
		Provider:  provider,
		SubjectID: subjectID,
		Scope:     provider.DefaultScope(),
		IsActive:  true,
	}
}

// WithProfile mirrors the provider profile; empty values never overwrite.
func (l IdentityLink) WithProfile(email, name, avatarURL string) IdentityLink {
	if email != "" {
		l.Email = email
	}

	if name != "" {
		l.DisplayName = name
	}

	if avatarURL != "" {
		l.AvatarURL = avatarURL
	}

	return l
}

func (l IdentityLink) WithProviderTokens(accessToken, refreshToken string, expiresAt time.Time, scope string) IdentityLink {
	l.AccessToken = accessToken
	if refreshToken != "" {
		l.RefreshToken = refreshToken
	}

	l.TokenExpiresAt = sql.NullTime{Time: expiresAt, Valid: !expiresAt.IsZero()}
	if scope != "" {
		l.Scope = scope
	} else if l.Scope == "" {
		l.Scope = l.Provider.DefaultScope()
	}

	return l
}

func (l IdentityLink) Activate() IdentityLink {
	l.IsActive = true
	return l
}

// Deactivate drops every piece of provider token material. A deactivated
// link can never be primary.
func (l IdentityLink) Deactivate() IdentityLink {
	l.IsActive = false
	l.IsPrimary = false
	l.AccessToken = ""
	l.RefreshToken = ""
	l.TokenExpiresAt = sql.NullTime{}
	l.Scope = ""
	return l
}

func (l IdentityLink) Promote() IdentityLink {
	l.IsPrimary = true
	return l
}

func (l IdentityLink) LoggedIn(now time.Time) IdentityLink {
	l.LastLoginAt = sql.NullTime{Time: now, Valid: true}
	return l
}

func (l IdentityLink) IsProviderTokenExpired(now time.Time) bool {
	return l.TokenExpiresAt.Valid && !now.Before(l.TokenExpiresAt.Time)
}
