package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/studymate/backend/internal/model"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/testutil"
	"github.com/studymate/backend/pkg/xcontext"
)

func anomalyContext() context.Context {
	ctx := testutil.MockContext()
	cfg := xcontext.Configs(ctx)
	cfg.Anomaly.AccountsPerIPThreshold = 2
	cfg.Anomaly.IPsPerAccountThreshold = 2
	return xcontext.WithConfigs(ctx, cfg)
}

func createSessionsFrom(t *testing.T, ctx context.Context, accountID string, now time.Time, ips ...string) {
	repo := repository.NewSessionTokenRepository()
	for _, ip := range ips {
		_, err := repo.Create(ctx, accountID, time.Hour, "web", ip, now)
		require.NoError(t, err)
	}
}

func Test_anomalyDomain_GetAnomalyReport(t *testing.T) {
	ctx := anomalyContext()
	testutil.CreateFixtureDb(ctx)
	now := time.Now()

	createSessionsFrom(t, ctx, testutil.Account1.ID, now, "10.0.0.1", "10.0.0.2", "10.0.0.3")
	createSessionsFrom(t, ctx, testutil.Account2.ID, now, "10.0.0.1")
	createSessionsFrom(t, ctx, testutil.AdminAccount.ID, now, "10.0.0.1", "")
	// Outside of the window.
	createSessionsFrom(t, ctx, testutil.Account2.ID, now.Add(-48*time.Hour), "10.0.0.7", "10.0.0.8", "10.0.0.9")

	domain := NewAnomalyDomain(repository.NewSessionTokenRepository(), nil)
	resp, err := domain.GetAnomalyReport(ctx, &model.GetAnomalyReportRequest{})
	require.NoError(t, err)

	require.Equal(t, []model.SuspiciousIP{{IP: "10.0.0.1", AccountCount: 3}}, resp.SuspiciousIPs)
	require.Equal(t, []model.SuspiciousAccount{{AccountID: testutil.Account1.ID, IPCount: 3}}, resp.SuspiciousAccounts)
	require.Equal(t, (24 * time.Hour).String(), resp.Window)

	// Reporting never touches the sessions.
	count, err := repository.NewSessionTokenRepository().CountValidByAccountID(ctx, testutil.Account1.ID, now)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func Test_anomalyDomain_GetAnomalyReport_Empty(t *testing.T) {
	ctx := anomalyContext()
	testutil.CreateFixtureDb(ctx)

	domain := NewAnomalyDomain(repository.NewSessionTokenRepository(), nil)
	resp, err := domain.GetAnomalyReport(ctx, &model.GetAnomalyReportRequest{})
	require.NoError(t, err)
	require.NotNil(t, resp.SuspiciousIPs)
	require.Empty(t, resp.SuspiciousIPs)
	require.Empty(t, resp.SuspiciousAccounts)
}

func Test_anomalyDomain_GetAnomalyReport_Cached(t *testing.T) {
	ctx := anomalyContext()
	testutil.CreateFixtureDb(ctx)
	now := time.Now()

	redisClient := testutil.NewMockRedisClient()
	domain := NewAnomalyDomain(repository.NewSessionTokenRepository(), redisClient)

	first, err := domain.GetAnomalyReport(ctx, &model.GetAnomalyReportRequest{})
	require.NoError(t, err)
	require.Empty(t, first.SuspiciousIPs)

	createSessionsFrom(t, ctx, testutil.Account1.ID, now, "10.0.0.1")
	createSessionsFrom(t, ctx, testutil.Account2.ID, now, "10.0.0.1")
	createSessionsFrom(t, ctx, testutil.AdminAccount.ID, now, "10.0.0.1")

	cached, err := domain.GetAnomalyReport(ctx, &model.GetAnomalyReportRequest{})
	require.NoError(t, err)
	require.Empty(t, cached.SuspiciousIPs)
	require.Equal(t, first.GeneratedAt, cached.GeneratedAt)

	fresh, err := NewAnomalyDomain(repository.NewSessionTokenRepository(), nil).
		GetAnomalyReport(ctx, &model.GetAnomalyReportRequest{})
	require.NoError(t, err)
	require.Len(t, fresh.SuspiciousIPs, 1)
}
