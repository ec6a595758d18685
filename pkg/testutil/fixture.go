package testutil

import (
	"context"

	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/pkg/xcontext"
)

var (
	Account1 = entity.Account{
		Base:        entity.Base{ID: "account1"},
		Email:       "account1@studymate.com",
		DisplayName: "Account One",
		Role:        entity.UserRole,
	}

	Account2 = entity.Account{
		Base:        entity.Base{ID: "account2"},
		Email:       "account2@studymate.com",
		DisplayName: "Account Two",
		Role:        entity.UserRole,
	}

	AdminAccount = entity.Account{
		Base:        entity.Base{ID: "admin"},
		Email:       "admin@studymate.com",
		DisplayName: "Admin",
		Role:        entity.AdminRole,
	}

	Account1Google = entity.IdentityLink{
		Base:      entity.Base{ID: "link-account1-google"},
		AccountID: Account1.ID,
		Provider:  entity.GoogleProvider,
		SubjectID: "g-account1",
		Email:     Account1.Email,
		Scope:     entity.GoogleProvider.DefaultScope(),
		IsPrimary: true,
		IsActive:  true,
	}
)

// CreateFixtureDb inserts the fixture accounts and links into the database
// of ctx.
func CreateFixtureDb(ctx context.Context) {
	for _, account := range []entity.Account{Account1, Account2, AdminAccount} {
		account := account
		if err := xcontext.DB(ctx).Create(&account).Error; err != nil {
			panic(err)
		}
	}

	link := Account1Google
	if err := xcontext.DB(ctx).Omit("Account").Create(&link).Error; err != nil {
		panic(err)
	}
}
