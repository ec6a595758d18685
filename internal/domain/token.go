package domain

import (
	"context"
	"errors"

	"github.com/studymate/backend/internal/common"
	"github.com/studymate/backend/internal/model"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/token"
	"github.com/studymate/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type TokenDomain interface {
	VerifyToken(context.Context, *model.VerifyTokenRequest) (*model.VerifyTokenResponse, error)
	GetTokenSummary(context.Context, *model.GetTokenSummaryRequest) (*model.GetTokenSummaryResponse, error)
	IssueAdminToken(context.Context, *model.IssueAdminTokenRequest) (*model.IssueAdminTokenResponse, error)
	IssueServiceToken(context.Context, *model.IssueServiceTokenRequest) (*model.IssueServiceTokenResponse, error)
}

type tokenDomain struct {
	accountRepo repository.AccountRepository
	codec       *token.Codec
}

func NewTokenDomain(accountRepo repository.AccountRepository, codec *token.Codec) TokenDomain {
	return &tokenDomain{accountRepo: accountRepo, codec: codec}
}

func (d *tokenDomain) bearerToken(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	tkn, ok := token.ExtractBearer(common.BearerHeader(xcontext.HTTPRequest(ctx)))
	if !ok {
		return "", errorx.New(errorx.BadRequest, "Missing bearer token")
	}

	return tkn, nil
}

func (d *tokenDomain) VerifyToken(
	ctx context.Context, req *model.VerifyTokenRequest,
) (*model.VerifyTokenResponse, error) {
	tkn, err := d.bearerToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	claims, err := d.codec.Validate(tkn)
	if err != nil {
		return nil, err
	}

	return &model.VerifyTokenResponse{Valid: true, Claims: model.ConvertTokenClaims(claims)}, nil
}

func (d *tokenDomain) GetTokenSummary(
	ctx context.Context, req *model.GetTokenSummaryRequest,
) (*model.GetTokenSummaryResponse, error) {
	tkn, err := d.bearerToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	summary := d.codec.Summarize(tkn)
	return &model.GetTokenSummaryResponse{
		Valid:                  summary.Valid,
		Claims:                 model.ConvertTokenClaims(summary.Claims),
		MinutesUntilExpiration: summary.MinutesUntilExpiration,
		NeedsRefresh:           summary.NeedsRefresh,
		Error:                  summary.Error,
	}, nil
}

func (d *tokenDomain) IssueAdminToken(
	ctx context.Context, req *model.IssueAdminTokenRequest,
) (*model.IssueAdminTokenResponse, error) {
	if req.AccountID == "" {
		return nil, errorx.New(errorx.BadRequest, "Empty account id")
	}

	account, err := d.accountRepo.GetByID(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.AccountNotFound, "Account not found")
		}

		xcontext.Logger(ctx).Errorf("Cannot get account: %v", err)
		return nil, errorx.Unknown
	}

	if !account.IsAdmin() {
		return nil, errorx.New(errorx.PermissionDenied, "Account is not an admin")
	}

	accessToken, err := d.codec.IssueAdminToken(account.ID, account.Email, string(account.Role))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot issue admin token: %v", err)
		return nil, errorx.Unknown
	}

	return &model.IssueAdminTokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(d.codec.AccessTokenTTL().Seconds()),
	}, nil
}

func (d *tokenDomain) IssueServiceToken(
	ctx context.Context, req *model.IssueServiceTokenRequest,
) (*model.IssueServiceTokenResponse, error) {
	if req.ServiceID == "" {
		return nil, errorx.New(errorx.BadRequest, "Empty service id")
	}

	serviceToken, err := d.codec.IssueServiceToken(req.ServiceID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot issue service token: %v", err)
		return nil, errorx.Unknown
	}

	xcontext.Logger(ctx).Infof("Issued service token for %s by %s", req.ServiceID, xcontext.RequestUserID(ctx))
	return &model.IssueServiceTokenResponse{ServiceToken: serviceToken}, nil
}
