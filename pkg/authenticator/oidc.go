package authenticator

import (
	"context"
	"errors"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/studymate/backend/config"
	"golang.org/x/oauth2"
)

// oidcService exchanges codes with an OpenID Connect provider and reads the
// profile from the verified id_token.
type oidcService struct {
	provider *oidc.Provider
	config   oauth2.Config
	cfg      config.OAuth2Config
}

func NewOIDCService(ctx context.Context, cfg config.OAuth2Config) (*oidcService, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	return &oidcService{
		provider: provider,
		cfg:      cfg,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}, nil
}

func (s *oidcService) Service() string {
	return s.cfg.Name
}

func (s *oidcService) RequireState() bool {
	return s.cfg.RequireState
}

func (s *oidcService) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (s *oidcService) VerifyAuthorizationCode(ctx context.Context, code, state string) (OAuth2User, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return OAuth2User{}, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return OAuth2User{}, errors.New("no id_token field in oauth2 token")
	}

	idToken, err := s.provider.Verifier(&oidc.Config{ClientID: s.config.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return OAuth2User{}, err
	}

	var raw map[string]any
	if err = idToken.Claims(&raw); err != nil {
		return OAuth2User{}, errors.New("invalid id token")
	}

	p, err := decodeProfile(raw, s.cfg)
	if err != nil {
		return OAuth2User{}, err
	}

	return newOAuth2User(p, token, s.cfg), nil
}

func newOAuth2User(p profile, token *oauth2.Token, cfg config.OAuth2Config) OAuth2User {
	scope, _ := token.Extra("scope").(string)
	if scope == "" {
		scope = strings.Join(cfg.Scopes, " ")
	}

	return OAuth2User{
		ID:           p.ID,
		Email:        p.Email,
		Name:         p.Name,
		AvatarURL:    p.AvatarURL,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        scope,
	}
}
