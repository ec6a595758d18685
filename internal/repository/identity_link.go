package repository

import (
	"context"
	"errors"
	"time"

	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type IdentityLinkRepository interface {
	Create(ctx context.Context, link *entity.IdentityLink) error
	GetByProviderAndSubject(ctx context.Context, provider entity.Provider, subjectID string) (*entity.IdentityLink, error)
	GetByAccountIDAndProvider(ctx context.Context, accountID string, provider entity.Provider) (*entity.IdentityLink, error)
	GetActiveByAccountID(ctx context.Context, accountID string) ([]entity.IdentityLink, error)
	GetPrimary(ctx context.Context, accountID string) (*entity.IdentityLink, error)
	Update(ctx context.Context, link *entity.IdentityLink) error
	Deactivate(ctx context.Context, id string) error
	Promote(ctx context.Context, id string) error
	ClearExpiredProviderTokens(ctx context.Context, now time.Time) (int64, error)
}

type identityLinkRepository struct{}

func NewIdentityLinkRepository() *identityLinkRepository {
	return &identityLinkRepository{}
}

// Create fails with DuplicateIdentity when the (provider, subject) pair is
// already linked to any account.
func (r *identityLinkRepository) Create(ctx context.Context, link *entity.IdentityLink) error {
	var count int64
	err := xcontext.DB(ctx).Model(&entity.IdentityLink{}).
		Where("provider=? AND subject_id=?", link.Provider, link.SubjectID).
		Count(&count).Error
	if err != nil {
		return err
	}

	if count > 0 {
		return errorx.New(errorx.DuplicateIdentity, "Identity %s is already linked", link.Provider)
	}

	// The unique index still guards against a concurrent insert.
	err = xcontext.DB(ctx).Create(link).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errorx.New(errorx.DuplicateIdentity, "Identity %s is already linked", link.Provider)
	}

	return err
}

func (r *identityLinkRepository) GetByProviderAndSubject(
	ctx context.Context, provider entity.Provider, subjectID string,
) (*entity.IdentityLink, error) {
	var result entity.IdentityLink
	err := xcontext.DB(ctx).Take(&result, "provider=? AND subject_id=?", provider, subjectID).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// GetByAccountIDAndProvider only returns an active link.
func (r *identityLinkRepository) GetByAccountIDAndProvider(
	ctx context.Context, accountID string, provider entity.Provider,
) (*entity.IdentityLink, error) {
	var result entity.IdentityLink
	err := xcontext.DB(ctx).
		Where("account_id=? AND provider=? AND is_active=?", accountID, provider, true).
		Order("created_at ASC").
		Take(&result).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *identityLinkRepository) GetActiveByAccountID(ctx context.Context, accountID string) ([]entity.IdentityLink, error) {
	var result []entity.IdentityLink
	err := xcontext.DB(ctx).
		Where("account_id=? AND is_active=?", accountID, true).
		Order("created_at ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *identityLinkRepository) GetPrimary(ctx context.Context, accountID string) (*entity.IdentityLink, error) {
	var result entity.IdentityLink
	err := xcontext.DB(ctx).
		Take(&result, "account_id=? AND is_primary=? AND is_active=?", accountID, true, true).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *identityLinkRepository) Update(ctx context.Context, link *entity.IdentityLink) error {
	return xcontext.DB(ctx).Omit("Account").Save(link).Error
}

func (r *identityLinkRepository) Deactivate(ctx context.Context, id string) error {
	return r.updateLink(ctx, id, entity.IdentityLink.Deactivate)
}

func (r *identityLinkRepository) Promote(ctx context.Context, id string) error {
	return r.updateLink(ctx, id, entity.IdentityLink.Promote)
}

func (r *identityLinkRepository) updateLink(
	ctx context.Context, id string, transition func(entity.IdentityLink) entity.IdentityLink,
) error {
	var link entity.IdentityLink
	if err := xcontext.DB(ctx).Take(&link, "id=?", id).Error; err != nil {
		return err
	}

	link = transition(link)
	return r.Update(ctx, &link)
}

// ClearExpiredProviderTokens drops provider access tokens past their expiry.
// The provider refresh token is kept so the link can be renewed on next login.
func (r *identityLinkRepository) ClearExpiredProviderTokens(ctx context.Context, now time.Time) (int64, error) {
	tx := xcontext.DB(ctx).Model(&entity.IdentityLink{}).
		Where("token_expires_at IS NOT NULL AND token_expires_at < ?", now).
		Updates(map[string]any{
			"access_token":     "",
			"token_expires_at": nil,
		})
	if tx.Error != nil {
		return 0, tx.Error
	}

	return tx.RowsAffected, nil
}
