package entity

import (
	"context"

	"github.com/studymate/backend/pkg/xcontext"
)

// MigrateTable creates or updates the tables of every entity. Production
// databases are migrated with the versioned SQL files instead.
func MigrateTable(ctx context.Context) error {
	return xcontext.DB(ctx).AutoMigrate(
		&Account{},
		&IdentityLink{},
		&SessionToken{},
	)
}
