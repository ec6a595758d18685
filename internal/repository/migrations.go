package repository

import (
	"context"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/studymate/backend/pkg/logger"
	"github.com/studymate/backend/pkg/xcontext"
)

//go:embed migration/*.sql
var migrationsFS embed.FS

type dbLogger struct {
	logger logger.Logger
}

func (l *dbLogger) Printf(format string, v ...any) {
	l.logger.Infof(format, v...)
}

func (l *dbLogger) Verbose() bool {
	return false
}

// DoSqlMigration applies the embedded versioned migrations to the MySQL
// database of ctx.
func DoSqlMigration(ctx context.Context) error {
	db, err := xcontext.DB(ctx).DB()
	if err != nil {
		return err
	}

	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migration")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return err
	}

	m.Log = &dbLogger{logger: xcontext.Logger(ctx)}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
