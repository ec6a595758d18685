package domain

import (
	"context"
	"time"

	"github.com/studymate/backend/internal/common"
	"github.com/studymate/backend/internal/model"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/xcontext"
	"github.com/studymate/backend/pkg/xredis"
)

// AnomalyDomain only reports. It never revokes sessions or blocks accounts.
type AnomalyDomain interface {
	GetAnomalyReport(context.Context, *model.GetAnomalyReportRequest) (*model.GetAnomalyReportResponse, error)
}

type anomalyDomain struct {
	sessionTokenRepo repository.SessionTokenRepository
	redisClient      xredis.Client
}

// NewAnomalyDomain accepts a nil redisClient, in which case reports are not
// cached.
func NewAnomalyDomain(sessionTokenRepo repository.SessionTokenRepository, redisClient xredis.Client) AnomalyDomain {
	return &anomalyDomain{sessionTokenRepo: sessionTokenRepo, redisClient: redisClient}
}

func (d *anomalyDomain) GetAnomalyReport(
	ctx context.Context, req *model.GetAnomalyReportRequest,
) (*model.GetAnomalyReportResponse, error) {
	cfg := xcontext.Configs(ctx).Anomaly

	if d.redisClient != nil {
		var cached model.GetAnomalyReportResponse
		err := d.redisClient.GetObj(ctx, common.RedisKeyAnomalyReport, &cached)
		if err == nil {
			return &cached, nil
		}

		if !xredis.IsNil(err) {
			xcontext.Logger(ctx).Warnf("Cannot get cached anomaly report: %v", err)
		}
	}

	now := time.Now()
	since := now.Add(-cfg.Window)

	ips, err := d.sessionTokenRepo.GetSuspiciousIPs(ctx, since, cfg.AccountsPerIPThreshold)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get suspicious ips: %v", err)
		return nil, errorx.Unknown
	}

	accounts, err := d.sessionTokenRepo.GetSuspiciousAccounts(ctx, since, cfg.IPsPerAccountThreshold)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get suspicious accounts: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetAnomalyReportResponse{
		GeneratedAt:        now.Format(model.DefaultTimeLayout),
		Window:             cfg.Window.String(),
		SuspiciousIPs:      []model.SuspiciousIP{},
		SuspiciousAccounts: []model.SuspiciousAccount{},
	}

	for _, ip := range ips {
		resp.SuspiciousIPs = append(resp.SuspiciousIPs, model.SuspiciousIP{
			IP: ip.IP, AccountCount: ip.AccountCount,
		})
	}

	for _, account := range accounts {
		resp.SuspiciousAccounts = append(resp.SuspiciousAccounts, model.SuspiciousAccount{
			AccountID: account.AccountID, IPCount: account.IPCount,
		})
	}

	if len(ips) > 0 || len(accounts) > 0 {
		xcontext.Logger(ctx).Warnf("Anomaly report: %d suspicious ips, %d suspicious accounts",
			len(ips), len(accounts))
	}

	if d.redisClient != nil && cfg.CacheTTL > 0 {
		if err := d.redisClient.SetObj(ctx, common.RedisKeyAnomalyReport, resp, cfg.CacheTTL); err != nil {
			xcontext.Logger(ctx).Warnf("Cannot cache anomaly report: %v", err)
		}
	}

	return resp, nil
}
