package middleware

import (
	"context"

	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/router"
	"github.com/studymate/backend/pkg/token"
	"github.com/studymate/backend/pkg/xcontext"
)

// OnlyAdmin must run after AuthVerifier. Besides the admin claim of the token,
// the account must still hold the admin role.
type OnlyAdmin struct {
	accountRepo repository.AccountRepository
}

func NewOnlyAdmin(accountRepo repository.AccountRepository) *OnlyAdmin {
	return &OnlyAdmin{accountRepo: accountRepo}
}

func (a *OnlyAdmin) Middleware() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		claims, ok := RequestClaims(ctx)
		if !ok || claims.Kind != token.KindAdmin || !claims.IsAdmin {
			return nil, errorx.New(errorx.PermissionDenied, "Permission denied")
		}

		account, err := a.accountRepo.GetByID(ctx, claims.AccountID)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot get admin account %s: %v", claims.AccountID, err)
			return nil, errorx.New(errorx.PermissionDenied, "Permission denied")
		}

		if !account.IsAdmin() {
			return nil, errorx.New(errorx.PermissionDenied, "Permission denied")
		}

		return nil, nil
	}
}

func OnlyService() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		claims, ok := RequestClaims(ctx)
		if !ok || claims.Kind != token.KindService {
			return nil, errorx.New(errorx.PermissionDenied, "Only services can call this api")
		}

		return nil, nil
	}
}
