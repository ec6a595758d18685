package token

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/studymate/backend/pkg/enum"
	"github.com/studymate/backend/pkg/errorx"
)

type Kind string

var (
	KindAccess  = enum.New(Kind("ACCESS"), "ACCESS")
	KindAdmin   = enum.New(Kind("ADMIN"), "ADMIN")
	KindService = enum.New(Kind("SERVICE"), "SERVICE")
)

// Claims is the typed content of a signed token. Issuer, IssuedAt and
// ExpiresAt are filled by the codec.
type Claims struct {
	AccountID string
	Email     string
	Kind      Kind
	Role      string
	IsAdmin   bool
	ServiceID string

	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func NewAccessClaims(accountID, email string) Claims {
	return Claims{AccountID: accountID, Email: email, Kind: KindAccess}
}

func NewAdminClaims(accountID, email, role string) Claims {
	return Claims{AccountID: accountID, Email: email, Kind: KindAdmin, Role: role, IsAdmin: true}
}

func NewServiceClaims(serviceID string) Claims {
	return Claims{ServiceID: serviceID, Kind: KindService}
}

func (c Claims) subject() string {
	if c.Kind == KindService {
		return c.ServiceID
	}
	return c.AccountID
}

type wireClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"tokenType"`
	Role      string `json:"role,omitempty"`
	IsAdmin   bool   `json:"isAdmin,omitempty"`
	ServiceID string `json:"serviceId,omitempty"`
}

func toWire(c Claims) wireClaims {
	return wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			Subject:   c.subject(),
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
		AccountID: c.AccountID,
		Email:     c.Email,
		TokenType: string(c.Kind),
		Role:      c.Role,
		IsAdmin:   c.IsAdmin,
		ServiceID: c.ServiceID,
	}
}

func fromWire(w wireClaims) (Claims, error) {
	kind, err := enum.ToEnum[Kind](w.TokenType)
	if err != nil {
		return Claims{}, errorx.New(errorx.MalformedToken, "Unknown token type")
	}

	if w.ExpiresAt == nil {
		return Claims{}, errorx.New(errorx.MalformedToken, "Token has no expiration")
	}

	c := Claims{
		AccountID: w.AccountID,
		Email:     w.Email,
		Kind:      kind,
		Role:      w.Role,
		IsAdmin:   w.IsAdmin,
		ServiceID: w.ServiceID,
		Issuer:    w.Issuer,
		ExpiresAt: w.ExpiresAt.Time,
	}

	if w.IssuedAt != nil {
		c.IssuedAt = w.IssuedAt.Time
	}

	return c, nil
}
