package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/studymate/backend/internal/domain/cron"
	"github.com/studymate/backend/pkg/xcontext"
	"github.com/urfave/cli/v2"
)

func (s *srv) startCron(*cli.Context) error {
	s.loadDatabase()
	s.migrateDB()
	s.loadRepos()

	cfg := xcontext.Configs(s.ctx).Cleanup
	cronJobManager := cron.NewCronJobManager()
	cronJobManager.Register(
		cron.NewSessionCleanupCronJob(s.sessionTokenRepo, cfg.Interval, cfg.RevokedRetention),
		cron.NewProviderTokenCleanupCronJob(s.identityLinkRepo, cfg.Interval),
	)

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		cronJobManager.Cancel(s.ctx)
	}()

	cronJobManager.Start(s.ctx)
	return nil
}
