package repository

import (
	"context"

	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/pkg/xcontext"
)

type AccountRepository interface {
	Create(ctx context.Context, account *entity.Account) error
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	GetByEmail(ctx context.Context, email string) (*entity.Account, error)
	Save(ctx context.Context, account *entity.Account) error
}

type accountRepository struct{}

func NewAccountRepository() *accountRepository {
	return &accountRepository{}
}

func (r *accountRepository) Create(ctx context.Context, account *entity.Account) error {
	return xcontext.DB(ctx).Create(account).Error
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	var result entity.Account
	if err := xcontext.DB(ctx).Take(&result, "id=?", id).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

// GetByEmail returns the oldest account using email.
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	var result entity.Account
	err := xcontext.DB(ctx).
		Where("email=?", email).
		Order("created_at ASC").
		Take(&result).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *accountRepository) Save(ctx context.Context, account *entity.Account) error {
	return xcontext.DB(ctx).Save(account).Error
}
