package main

import (
	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/pkg/xcontext"
	"github.com/urfave/cli/v2"
)

func (s *srv) startMigrate(cctx *cli.Context) error {
	s.loadDatabase()

	if cctx.Bool("auto") {
		xcontext.Logger(s.ctx).Infof("Auto migrate tables")
		return entity.MigrateTable(s.ctx)
	}

	s.migrateDB()
	xcontext.Logger(s.ctx).Infof("Migrated database")
	return nil
}
