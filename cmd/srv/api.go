package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studymate/backend/internal/middleware"
	"github.com/studymate/backend/pkg/prometheus"
	"github.com/studymate/backend/pkg/router"
	"github.com/studymate/backend/pkg/xcontext"
	"github.com/urfave/cli/v2"
)

func (s *srv) startApi(*cli.Context) error {
	s.loadDatabase()
	s.migrateDB()
	s.loadSnowFlake()
	s.loadRedisClient()
	s.loadCodec()
	s.loadRepos()
	s.loadDomains()
	s.loadRouter()

	cfg := xcontext.Configs(s.ctx)
	if cfg.Prometheus.Enable {
		go s.startPrometheus(cfg.Prometheus.Port)
	}

	s.server = &http.Server{
		Addr:              cfg.ApiServer.Address(),
		Handler:           s.router.Handler(cfg.ApiServer.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.waitForShutdown()

	xcontext.Logger(s.ctx).Infof("Starting server on %s", cfg.ApiServer.Address())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			xcontext.Logger(s.ctx).Warnf("Cannot close redis client: %v", err)
		}
	}

	xcontext.Logger(s.ctx).Infof("Server stopped")
	return nil
}

func (s *srv) waitForShutdown() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		xcontext.Logger(s.ctx).Errorf("Cannot shutdown server: %v", err)
	}
}

func (s *srv) startPrometheus(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewHandler())

	xcontext.Logger(s.ctx).Infof("Starting prometheus on port %s", port)
	server := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		xcontext.Logger(s.ctx).Errorf("Prometheus server stopped: %v", err)
	}
}

func (s *srv) loadRouter() {
	s.router = router.New(s.ctx)
	s.router.Before(middleware.WithStartTime())
	s.router.AddCloser(middleware.Logger(), middleware.Prometheus())

	// Login and session APIs.
	authRouter := s.router.Branch()
	authRouter.After(middleware.HandleSetTokenCookies())
	{
		router.GET(authRouter, "/oauth2/authorize", s.authDomain.AuthorizeURL)
		router.POST(authRouter, "/login", s.authDomain.Login)
		router.POST(authRouter, "/refresh", s.authDomain.Refresh)
		router.POST(authRouter, "/logout", s.authDomain.Logout)
	}

	// These following APIs need authentication with an access token.
	onlyTokenAuthRouter := s.router.Branch()
	authVerifier := middleware.NewAuthVerifier(s.codec)
	onlyTokenAuthRouter.Before(authVerifier.Middleware())
	{
		router.POST(onlyTokenAuthRouter, "/logoutAll", s.authDomain.LogoutAll)
		router.POST(onlyTokenAuthRouter, "/logoutDevice", s.authDomain.LogoutDevice)
		router.GET(onlyTokenAuthRouter, "/getSessions", s.authDomain.GetSessions)

		router.GET(onlyTokenAuthRouter, "/getMe", s.identityDomain.GetMe)
		router.GET(onlyTokenAuthRouter, "/getLinkedIdentities", s.identityDomain.GetLinkedIdentities)
		router.POST(onlyTokenAuthRouter, "/unlinkIdentity", s.identityDomain.UnlinkIdentity)
	}

	// Admin APIs.
	adminRouter := s.router.Branch()
	adminRouter.Before(authVerifier.Middleware(), middleware.NewOnlyAdmin(s.accountRepo).Middleware())
	{
		router.GET(adminRouter, "/getAnomalyReport", s.anomalyDomain.GetAnomalyReport)
		router.POST(adminRouter, "/issueAdminToken", s.tokenDomain.IssueAdminToken)
		router.POST(adminRouter, "/issueServiceToken", s.tokenDomain.IssueServiceToken)
	}

	// APIs for other services, authenticated with a service token.
	serviceRouter := s.router.Branch()
	serviceRouter.Before(authVerifier.WithServiceToken().Middleware(), middleware.OnlyService())
	{
		router.GET(serviceRouter, "/service/getAnomalyReport", s.anomalyDomain.GetAnomalyReport)
		router.GET(serviceRouter, "/service/getTokenSummary", s.tokenDomain.GetTokenSummary)
	}

	// Public API.
	router.GET(s.router, "/verifyToken", s.tokenDomain.VerifyToken)
	router.GET(s.router, "/getTokenSummary", s.tokenDomain.GetTokenSummary)

	if !xcontext.Configs(s.ctx).Prometheus.Enable {
		s.router.Handle("/metrics", prometheus.NewHandler())
	}
}
