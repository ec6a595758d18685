package entity

import (
	"database/sql"
	"time"
)

// SessionToken is a long-lived credential bound to one device. Only the hash
// of the secret is stored; Secret is set on creation and never persisted.
type SessionToken struct {
	SnowFlakeBase
	AccountID string  `gorm:"index:idx_session_tokens_account_state,priority:1;not null"`
	Account   Account `gorm:"foreignKey:AccountID"`

	SecretHash string `gorm:"uniqueIndex;size:64;not null"`
	Secret     string `gorm:"-"`

	ExpiresAt time.Time `gorm:"index:idx_session_tokens_account_state,priority:3;index"`
	Revoked   bool      `gorm:"index:idx_session_tokens_account_state,priority:2;not null"`
	RevokedAt sql.NullTime

	Device     string
	IP         string `gorm:"index;size:64"`
	LastUsedAt time.Time
}

func (t SessionToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsValid holds iff the token is neither revoked nor expired at now.
func (t SessionToken) IsValid(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}

func (t SessionToken) Remaining(now time.Time) time.Duration {
	if t.IsExpired(now) {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}

// Revoke is terminal; revoking twice keeps the first revocation time.
func (t SessionToken) Revoke(now time.Time) SessionToken {
	if t.Revoked {
		return t
	}

	t.Revoked = true
	t.RevokedAt = sql.NullTime{Time: now, Valid: true}
	return t
}

// Touch records a use of the token. Empty device or ip keep the old values.
func (t SessionToken) Touch(device, ip string, now time.Time) SessionToken {
	t.LastUsedAt = now
	if device != "" {
		t.Device = device
	}

	if ip != "" {
		t.IP = ip
	}

	return t
}
