package model

import (
	"strconv"
	"time"

	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/pkg/token"
)

const DefaultTimeLayout string = time.RFC3339Nano

func ConvertAccount(account *entity.Account) Account {
	if account == nil {
		return Account{}
	}

	result := Account{
		ID:            account.ID,
		Email:         account.Email,
		DisplayName:   account.DisplayName,
		AvatarURL:     account.AvatarURL,
		EmailVerified: account.EmailVerified,
		Role:          string(account.Role),
	}

	if account.LastLoginAt.Valid {
		result.LastLoginAt = account.LastLoginAt.Time.Format(DefaultTimeLayout)
	}

	return result
}

func ConvertIdentityLink(link *entity.IdentityLink) IdentityLink {
	if link == nil {
		return IdentityLink{}
	}

	result := IdentityLink{
		ID:          link.ID,
		Provider:    string(link.Provider),
		Email:       link.Email,
		DisplayName: link.DisplayName,
		AvatarURL:   link.AvatarURL,
		IsPrimary:   link.IsPrimary,
		LinkedAt:    link.CreatedAt.Format(DefaultTimeLayout),
	}

	if link.LastLoginAt.Valid {
		result.LastLoginAt = link.LastLoginAt.Time.Format(DefaultTimeLayout)
	}

	return result
}

// ConvertSession never exposes the secret or its hash.
func ConvertSession(session *entity.SessionToken) Session {
	if session == nil {
		return Session{}
	}

	return Session{
		ID:         strconv.FormatInt(session.ID, 10),
		Device:     session.Device,
		IP:         session.IP,
		CreatedAt:  session.CreatedAt.Format(DefaultTimeLayout),
		LastUsedAt: session.LastUsedAt.Format(DefaultTimeLayout),
		ExpiresAt:  session.ExpiresAt.Format(DefaultTimeLayout),
	}
}

func ConvertTokenClaims(claims token.Claims) TokenClaims {
	return TokenClaims{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Kind:      string(claims.Kind),
		Role:      claims.Role,
		IsAdmin:   claims.IsAdmin,
		ServiceID: claims.ServiceID,
		Issuer:    claims.Issuer,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}
}
