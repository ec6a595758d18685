package authenticator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/studymate/backend/config"
	"golang.org/x/oauth2"
)

// userInfoService exchanges codes with a plain OAuth2 provider and reads the
// profile from its userinfo endpoint.
type userInfoService struct {
	config oauth2.Config
	cfg    config.OAuth2Config
}

func NewUserInfoService(cfg config.OAuth2Config) *userInfoService {
	return &userInfoService{
		cfg: cfg,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
	}
}

func (s *userInfoService) Service() string {
	return s.cfg.Name
}

func (s *userInfoService) RequireState() bool {
	return s.cfg.RequireState
}

func (s *userInfoService) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state)
}

func (s *userInfoService) VerifyAuthorizationCode(ctx context.Context, code, state string) (OAuth2User, error) {
	token, err := s.config.Exchange(ctx, code, oauth2.SetAuthURLParam("state", state))
	if err != nil {
		return OAuth2User{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.UserInfoURL, nil)
	if err != nil {
		return OAuth2User{}, err
	}

	resp, err := s.config.Client(ctx, token).Do(req)
	if err != nil {
		return OAuth2User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return OAuth2User{}, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return OAuth2User{}, err
	}

	p, err := decodeProfile(raw, s.cfg)
	if err != nil {
		return OAuth2User{}, err
	}

	return newOAuth2User(p, token, s.cfg), nil
}
