package main

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/studymate/backend/config"
	"github.com/studymate/backend/internal/domain"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/authenticator"
	"github.com/studymate/backend/pkg/logger"
	"github.com/studymate/backend/pkg/router"
	"github.com/studymate/backend/pkg/token"
	"github.com/studymate/backend/pkg/xcontext"
	"github.com/studymate/backend/pkg/xredis"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type srv struct {
	app *cli.App
	ctx context.Context

	redisClient xredis.Client
	codec       *token.Codec

	accountRepo      repository.AccountRepository
	identityLinkRepo repository.IdentityLinkRepository
	sessionTokenRepo repository.SessionTokenRepository

	authDomain     domain.AuthDomain
	identityDomain domain.IdentityDomain
	tokenDomain    domain.TokenDomain
	anomalyDomain  domain.AnomalyDomain

	router *router.Router
	server *http.Server
}

func (s *srv) loadConfig(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	s.ctx = context.Background()
	s.ctx = xcontext.WithConfigs(s.ctx, cfg)
	s.ctx = xcontext.WithLogger(s.ctx, logger.NewLogger(cfg.LogLevel))
	return nil
}

func (s *srv) newDatabase() *gorm.DB {
	cfg := xcontext.Configs(s.ctx).Database

	logLevel := gormlogger.Error
	switch cfg.LogLevel {
	case "silent":
		logLevel = gormlogger.Silent
	case "warn":
		logLevel = gormlogger.Warn
	case "info":
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.ConnectionString()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		panic(err)
	}

	return db
}

func (s *srv) loadDatabase() {
	s.ctx = xcontext.WithDB(s.ctx, s.newDatabase())
}

func (s *srv) migrateDB() {
	if err := repository.DoSqlMigration(s.ctx); err != nil {
		panic(err)
	}
}

func (s *srv) loadSnowFlake() {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}

	s.ctx = xcontext.WithSnowFlake(s.ctx, node)
}

// loadRedisClient leaves redisClient nil when redis is disabled.
func (s *srv) loadRedisClient() {
	if !xcontext.Configs(s.ctx).Redis.Enable {
		return
	}

	client, err := xredis.NewClient(s.ctx)
	if err != nil {
		panic(err)
	}

	s.redisClient = client
}

func (s *srv) loadCodec() {
	codec, err := token.NewCodec(xcontext.Configs(s.ctx).Auth)
	if err != nil {
		panic(err)
	}

	s.codec = codec
}

func (s *srv) loadRepos() {
	s.accountRepo = repository.NewAccountRepository()
	s.identityLinkRepo = repository.NewIdentityLinkRepository()
	s.sessionTokenRepo = repository.NewSessionTokenRepository()
}

func (s *srv) loadOAuth2Services() []authenticator.IOAuth2Service {
	cfg := xcontext.Configs(s.ctx).Auth
	services := []authenticator.IOAuth2Service{}

	if cfg.Google.Enabled() {
		google, err := authenticator.NewOIDCService(s.ctx, cfg.Google)
		if err != nil {
			panic(err)
		}
		services = append(services, google)
	}

	if cfg.Naver.Enabled() {
		services = append(services, authenticator.NewUserInfoService(cfg.Naver))
	}

	if len(services) == 0 {
		xcontext.Logger(s.ctx).Warnf("No oauth2 provider is configured, nobody can login")
	}

	return services
}

func (s *srv) loadDomains() {
	s.authDomain = domain.NewAuthDomain(s.ctx, s.accountRepo, s.identityLinkRepo, s.sessionTokenRepo,
		s.codec, s.loadOAuth2Services())
	s.identityDomain = domain.NewIdentityDomain(s.accountRepo, s.identityLinkRepo)
	s.tokenDomain = domain.NewTokenDomain(s.accountRepo, s.codec)
	s.anomalyDomain = domain.NewAnomalyDomain(s.sessionTokenRepo, s.redisClient)
}
