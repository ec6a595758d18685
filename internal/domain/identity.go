package domain

import (
	"context"
	"errors"

	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/internal/model"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type IdentityDomain interface {
	GetMe(context.Context, *model.GetMeRequest) (*model.GetMeResponse, error)
	GetLinkedIdentities(context.Context, *model.GetLinkedIdentitiesRequest) (*model.GetLinkedIdentitiesResponse, error)
	UnlinkIdentity(context.Context, *model.UnlinkIdentityRequest) (*model.UnlinkIdentityResponse, error)
}

type identityDomain struct {
	accountRepo      repository.AccountRepository
	identityLinkRepo repository.IdentityLinkRepository
}

func NewIdentityDomain(
	accountRepo repository.AccountRepository,
	identityLinkRepo repository.IdentityLinkRepository,
) IdentityDomain {
	return &identityDomain{
		accountRepo:      accountRepo,
		identityLinkRepo: identityLinkRepo,
	}
}

func (d *identityDomain) GetMe(ctx context.Context, req *model.GetMeRequest) (*model.GetMeResponse, error) {
	account, err := d.accountRepo.GetByID(ctx, xcontext.RequestUserID(ctx))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.AccountNotFound, "Account not found")
		}

		xcontext.Logger(ctx).Errorf("Cannot get account: %v", err)
		return nil, errorx.Unknown
	}

	return &model.GetMeResponse{Account: model.ConvertAccount(account)}, nil
}

func (d *identityDomain) GetLinkedIdentities(
	ctx context.Context, req *model.GetLinkedIdentitiesRequest,
) (*model.GetLinkedIdentitiesResponse, error) {
	links, err := d.identityLinkRepo.GetActiveByAccountID(ctx, xcontext.RequestUserID(ctx))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get identity links: %v", err)
		return nil, errorx.Unknown
	}

	result := []model.IdentityLink{}
	for i := range links {
		result = append(result, model.ConvertIdentityLink(&links[i]))
	}

	return &model.GetLinkedIdentitiesResponse{Identities: result}, nil
}

// UnlinkIdentity deactivates the link of the given provider. When it was the
// primary link, the oldest remaining active link becomes primary.
func (d *identityDomain) UnlinkIdentity(
	ctx context.Context, req *model.UnlinkIdentityRequest,
) (*model.UnlinkIdentityResponse, error) {
	provider, err := entity.ParseProvider(req.Provider)
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Unknown provider %s", req.Provider)
	}

	accountID := xcontext.RequestUserID(ctx)

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	link, err := d.identityLinkRepo.GetByAccountIDAndProvider(ctx, accountID, provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.LinkNotFound, "No %s identity is linked", provider)
		}

		xcontext.Logger(ctx).Errorf("Cannot get identity link: %v", err)
		return nil, errorx.Unknown
	}

	if err := d.identityLinkRepo.Deactivate(ctx, link.ID); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot deactivate identity link: %v", err)
		return nil, errorx.Unknown
	}

	if link.IsPrimary {
		remaining, err := d.identityLinkRepo.GetActiveByAccountID(ctx, accountID)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot get remaining identity links: %v", err)
			return nil, errorx.Unknown
		}

		if len(remaining) > 0 {
			if err := d.identityLinkRepo.Promote(ctx, remaining[0].ID); err != nil {
				xcontext.Logger(ctx).Errorf("Cannot promote identity link: %v", err)
				return nil, errorx.Unknown
			}
		}
	}

	xcontext.WithCommitDBTransaction(ctx)
	return &model.UnlinkIdentityResponse{}, nil
}
