package cron

import (
	"context"
	"time"

	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/xcontext"
)

type ProviderTokenCleanupCronJob struct {
	identityLinkRepo repository.IdentityLinkRepository
	interval         time.Duration
}

func NewProviderTokenCleanupCronJob(
	identityLinkRepo repository.IdentityLinkRepository, interval time.Duration,
) *ProviderTokenCleanupCronJob {
	return &ProviderTokenCleanupCronJob{identityLinkRepo: identityLinkRepo, interval: interval}
}

func (job *ProviderTokenCleanupCronJob) Do(ctx context.Context) {
	count, err := job.identityLinkRepo.ClearExpiredProviderTokens(ctx, time.Now())
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot clear expired provider tokens: %v", err)
		return
	}

	if count > 0 {
		xcontext.Logger(ctx).Infof("Cleared %d expired provider tokens", count)
	}
}

func (job *ProviderTokenCleanupCronJob) RunNow() bool {
	return false
}

func (job *ProviderTokenCleanupCronJob) Next() time.Time {
	return time.Now().Add(job.interval)
}
