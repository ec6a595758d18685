package testutil

import (
	"context"

	"github.com/studymate/backend/pkg/authenticator"
)

type MockOAuth2 struct {
	Name                        string
	RequireStateValue           bool
	VerifyAuthorizationCodeFunc func(ctx context.Context, code, state string) (authenticator.OAuth2User, error)
}

func NewMockOAuth2(name string) *MockOAuth2 {
	return &MockOAuth2{Name: name}
}

func (m *MockOAuth2) Service() string {
	return m.Name
}

func (m *MockOAuth2) RequireState() bool {
	return m.RequireStateValue
}

func (m *MockOAuth2) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (m *MockOAuth2) VerifyAuthorizationCode(ctx context.Context, code, state string) (authenticator.OAuth2User, error) {
	if m.VerifyAuthorizationCodeFunc != nil {
		return m.VerifyAuthorizationCodeFunc(ctx, code, state)
	}

	return authenticator.OAuth2User{}, nil
}
