package model

import "time"

type Account struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url"`
	EmailVerified bool   `json:"email_verified"`
	Role          string `json:"role"`
	LastLoginAt   string `json:"last_login_at,omitempty"`
}

type IdentityLink struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	IsPrimary   bool   `json:"is_primary"`
	LinkedAt    string `json:"linked_at"`
	LastLoginAt string `json:"last_login_at,omitempty"`
}

type Session struct {
	ID         string `json:"id"`
	Device     string `json:"device"`
	IP         string `json:"ip"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at"`
	ExpiresAt  string `json:"expires_at"`
}

type TokenClaims struct {
	AccountID string    `json:"account_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Kind      string    `json:"token_type"`
	Role      string    `json:"role,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	ServiceID string    `json:"service_id,omitempty"`
	Issuer    string    `json:"issuer"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SuspiciousIP struct {
	IP           string `json:"ip"`
	AccountCount int64  `json:"account_count"`
}

type SuspiciousAccount struct {
	AccountID string `json:"account_id"`
	IPCount   int64  `json:"ip_count"`
}
