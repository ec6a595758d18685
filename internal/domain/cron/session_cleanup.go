package cron

import (
	"context"
	"time"

	"github.com/studymate/backend/internal/common"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/xcontext"
)

// SessionCleanupCronJob deletes expired sessions and sessions revoked longer
// ago than the retention period.
type SessionCleanupCronJob struct {
	sessionTokenRepo repository.SessionTokenRepository
	interval         time.Duration
	retention        time.Duration
}

func NewSessionCleanupCronJob(
	sessionTokenRepo repository.SessionTokenRepository,
	interval, retention time.Duration,
) *SessionCleanupCronJob {
	return &SessionCleanupCronJob{
		sessionTokenRepo: sessionTokenRepo,
		interval:         interval,
		retention:        retention,
	}
}

func (job *SessionCleanupCronJob) Do(ctx context.Context) {
	now := time.Now()

	expired, err := job.sessionTokenRepo.DeleteExpiredBefore(ctx, now)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot delete expired sessions: %v", err)
	} else {
		common.PromCounters[common.SessionCleanupTotal].WithLabelValues("expired").Add(float64(expired))
	}

	revoked, err := job.sessionTokenRepo.DeleteRevokedBefore(ctx, now.Add(-job.retention))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot delete revoked sessions: %v", err)
	} else {
		common.PromCounters[common.SessionCleanupTotal].WithLabelValues("revoked").Add(float64(revoked))
	}

	if expired > 0 || revoked > 0 {
		xcontext.Logger(ctx).Infof("Deleted %d expired and %d revoked sessions", expired, revoked)
	}
}

func (job *SessionCleanupCronJob) RunNow() bool {
	return true
}

func (job *SessionCleanupCronJob) Next() time.Time {
	return time.Now().Add(job.interval)
}
