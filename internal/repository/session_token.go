package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/pkg/crypto"
	"github.com/studymate/backend/pkg/xcontext"
	"gorm.io/gorm"
)

const (
	sessionSecretBytes     = 48
	maxSecretCollisionTry  = 5
	validSessionCondition  = "revoked=? AND expires_at>?"
	accountSessionCriteria = "account_id=? AND " + validSessionCondition
)

type SuspiciousIP struct {
	IP           string
	AccountCount int64
}

type SuspiciousAccount struct {
	AccountID string
	IPCount   int64
}

type SessionTokenRepository interface {
	Create(ctx context.Context, accountID string, ttl time.Duration, device, ip string, now time.Time) (*entity.SessionToken, error)
	GetBySecret(ctx context.Context, secret string) (*entity.SessionToken, error)
	Revoke(ctx context.Context, id int64, now time.Time) error
	UpdateUsage(ctx context.Context, token *entity.SessionToken) error
	RevokeAllByAccountID(ctx context.Context, accountID string, now time.Time) (int64, error)
	RevokeByDevice(ctx context.Context, accountID, device string, now time.Time) (int64, error)
	GetValidByAccountID(ctx context.Context, accountID string, now time.Time) ([]entity.SessionToken, error)
	CountValidByAccountID(ctx context.Context, accountID string, now time.Time) (int64, error)
	GetEvictionCandidates(ctx context.Context, accountID string, now time.Time) ([]entity.SessionToken, error)
	GetSuspiciousIPs(ctx context.Context, since time.Time, threshold int) ([]SuspiciousIP, error)
	GetSuspiciousAccounts(ctx context.Context, since time.Time, threshold int) ([]SuspiciousAccount, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionTokenRepository struct{}

func NewSessionTokenRepository() *sessionTokenRepository {
	return &sessionTokenRepository{}
}

func hashSecret(secret string) string {
	return crypto.SHA256([]byte(secret))
}

// Create stores a new valid session and returns it with its plain secret.
// A secret colliding with an existing one is regenerated.
func (r *sessionTokenRepository) Create(
	ctx context.Context, accountID string, ttl time.Duration, device, ip string, now time.Time,
) (*entity.SessionToken, error) {
	for i := 0; i < maxSecretCollisionTry; i++ {
		secret, err := crypto.GenerateRandomString(sessionSecretBytes)
		if err != nil {
			return nil, err
		}

		hash := hashSecret(secret)
		var count int64
		if err := xcontext.DB(ctx).Model(&entity.SessionToken{}).
			Where("secret_hash=?", hash).Count(&count).Error; err != nil {
			return nil, err
		}

		if count > 0 {
			xcontext.Logger(ctx).Warnf("Session secret collision, regenerate")
			continue
		}

		token := &entity.SessionToken{
			SnowFlakeBase: entity.SnowFlakeBase{ID: xcontext.SnowFlake(ctx).Generate().Int64()},
			AccountID:     accountID,
			SecretHash:    hash,
			ExpiresAt:     now.Add(ttl),
			Device:        device,
			IP:            ip,
			LastUsedAt:    now,
		}

		err = xcontext.DB(ctx).Omit("Account").Create(token).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}

		if err != nil {
			return nil, err
		}

		token.Secret = secret
		return token, nil
	}

	return nil, fmt.Errorf("cannot generate unique session secret after %d attempts", maxSecretCollisionTry)
}

func (r *sessionTokenRepository) GetBySecret(ctx context.Context, secret string) (*entity.SessionToken, error) {
	var result entity.SessionToken
	if err := xcontext.DB(ctx).Take(&result, "secret_hash=?", hashSecret(secret)).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

// Revoke is idempotent: an already revoked token keeps its first revocation
// time.
func (r *sessionTokenRepository) Revoke(ctx context.Context, id int64, now time.Time) error {
	var token entity.SessionToken
	err := xcontext.DB(ctx).Take(&token, "id=?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if token.Revoked {
		return nil
	}

	// The revoked=false guard keeps the first revocation time under a race.
	revoked := token.Revoke(now)
	return xcontext.DB(ctx).Model(&entity.SessionToken{}).
		Where("id=? AND revoked=?", id, false).
		Updates(map[string]any{
			"revoked":    revoked.Revoked,
			"revoked_at": revoked.RevokedAt,
		}).Error
}

// UpdateUsage persists the usage fields only, never the revocation state, so
// a concurrent revocation cannot be undone.
func (r *sessionTokenRepository) UpdateUsage(ctx context.Context, token *entity.SessionToken) error {
	return xcontext.DB(ctx).Model(&entity.SessionToken{}).
		Where("id=?", token.ID).
		Updates(map[string]any{
			"last_used_at": token.LastUsedAt,
			"device":       token.Device,
			"ip":           token.IP,
		}).Error
}

func (r *sessionTokenRepository) RevokeAllByAccountID(ctx context.Context, accountID string, now time.Time) (int64, error) {
	tx := xcontext.DB(ctx).Model(&entity.SessionToken{}).
		Where("account_id=? AND revoked=?", accountID, false).
		Updates(map[string]any{
			"revoked":    true,
			"revoked_at": now,
		})
	if tx.Error != nil {
		return 0, tx.Error
	}

	return tx.RowsAffected, nil
}

func (r *sessionTokenRepository) RevokeByDevice(
	ctx context.Context, accountID, device string, now time.Time,
) (int64, error) {
	tx := xcontext.DB(ctx).Model(&entity.SessionToken{}).
		Where("account_id=? AND device=? AND revoked=?", accountID, device, false).
		Updates(map[string]any{
			"revoked":    true,
			"revoked_at": now,
		})
	if tx.Error != nil {
		return 0, tx.Error
	}

	return tx.RowsAffected, nil
}

func (r *sessionTokenRepository) GetValidByAccountID(
	ctx context.Context, accountID string, now time.Time,
) ([]entity.SessionToken, error) {
	var result []entity.SessionToken
	err := xcontext.DB(ctx).
		Where(accountSessionCriteria, accountID, false, now).
		Order("last_used_at DESC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *sessionTokenRepository) CountValidByAccountID(ctx context.Context, accountID string, now time.Time) (int64, error) {
	var count int64
	err := xcontext.DB(ctx).Model(&entity.SessionToken{}).
		Where(accountSessionCriteria, accountID, false, now).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// GetEvictionCandidates returns valid sessions, least recently used first.
func (r *sessionTokenRepository) GetEvictionCandidates(
	ctx context.Context, accountID string, now time.Time,
) ([]entity.SessionToken, error) {
	var result []entity.SessionToken
	err := xcontext.DB(ctx).
		Where(accountSessionCriteria, accountID, false, now).
		Order("last_used_at ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetSuspiciousIPs returns IPs used by more than threshold distinct accounts
// since the given time.
func (r *sessionTokenRepository) GetSuspiciousIPs(
	ctx context.Context, since time.Time, threshold int,
) ([]SuspiciousIP, error) {
	var result []SuspiciousIP
	err := xcontext.DB(ctx).Model(&entity.SessionToken{}).
		Select("ip, COUNT(DISTINCT account_id) AS account_count").
		Where("last_used_at>=? AND ip<>?", since, "").
		Group("ip").
		Having("COUNT(DISTINCT account_id)>?", threshold).
		Order("account_count DESC").
		Scan(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetSuspiciousAccounts returns accounts seen from more than threshold
// distinct IPs since the given time.
func (r *sessionTokenRepository) GetSuspiciousAccounts(
	ctx context.Context, since time.Time, threshold int,
) ([]SuspiciousAccount, error) {
	var result []SuspiciousAccount
	err := xcontext.DB(ctx).Model(&entity.SessionToken{}).
		Select("account_id, COUNT(DISTINCT ip) AS ip_count").
		Where("last_used_at>=? AND ip<>?", since, "").
		Group("account_id").
		Having("COUNT(DISTINCT ip)>?", threshold).
		Order("ip_count DESC").
		Scan(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *sessionTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := xcontext.DB(ctx).Where("expires_at<?", cutoff).Delete(&entity.SessionToken{})
	if tx.Error != nil {
		return 0, tx.Error
	}

	return tx.RowsAffected, nil
}

func (r *sessionTokenRepository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := xcontext.DB(ctx).
		Where("revoked=? AND revoked_at<?", true, cutoff).
		Delete(&entity.SessionToken{})
	if tx.Error != nil {
		return 0, tx.Error
	}

	return tx.RowsAffected, nil
}
