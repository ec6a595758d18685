package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unicode"

	"github.com/BurntSushi/toml"
)

type Configs struct {
	Env      string
	LogLevel int

	Database   DatabaseConfigs
	ApiServer  ServerConfigs
	Auth       AuthConfigs
	Session    SessionConfigs
	Anomaly    AnomalyConfigs
	Cleanup    CleanupConfigs
	Redis      RedisConfigs
	Prometheus PrometheusConfigs
}

type DatabaseConfigs struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	LogLevel string
}

func (d *DatabaseConfigs) ConnectionString() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

// MigrationURL is the golang-migrate form of the same database.
func (d *DatabaseConfigs) MigrationURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

type ServerConfigs struct {
	Host           string
	Port           string
	AllowedOrigins []string

	// TrustProxy honors X-Forwarded-For and X-Real-IP. Only enable it when the
	// server is reachable through a reverse proxy that overwrites them.
	TrustProxy bool
}

func (s ServerConfigs) Address() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

type SessionConfigs struct {
	Secret string
	Name   string
}

type AuthConfigs struct {
	TokenSecret   string
	Issuer        string
	OAuth2Timeout time.Duration

	AccessToken  TokenConfigs
	ServiceToken TokenConfigs
	SessionToken SessionTokenConfigs

	Google OAuth2Config
	Naver  OAuth2Config
}

type TokenConfigs struct {
	Name       string
	Expiration time.Duration
}

type SessionTokenConfigs struct {
	Name          string
	Expiration    time.Duration
	RotateBefore  time.Duration
	MaxPerAccount int
}

// OAuth2Config describes one external identity provider. Issuer is only set
// for OIDC providers; the others are read through UserInfoURL.
type OAuth2Config struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	RequireState bool

	// Dotted path to the object holding the profile in the userinfo response,
	// e.g. "response" for Naver. Empty means the root object.
	ResponseField string
	IDField       string
	EmailField    string
	NameField     string
	AvatarField   string
}

func (c OAuth2Config) Enabled() bool {
	return c.ClientID != ""
}

type AnomalyConfigs struct {
	Window                 time.Duration
	AccountsPerIPThreshold int
	IPsPerAccountThreshold int
	CacheTTL               time.Duration
}

type CleanupConfigs struct {
	Interval         time.Duration
	RevokedRetention time.Duration
}

type RedisConfigs struct {
	Enable bool
	Addr   string
}

type PrometheusConfigs struct {
	Enable bool
	Port   string
}

func Default() Configs {
	return Configs{
		Env:      "local",
		LogLevel: 1,
		Database: DatabaseConfigs{
			Host:     "localhost",
			Port:     "3306",
			Database: "studymate",
			User:     "mysql",
			Password: "mysql",
			LogLevel: "error",
		},
		ApiServer: ServerConfigs{
			Host:           "localhost",
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Auth: AuthConfigs{
			Issuer:        "StudyMate",
			OAuth2Timeout: 10 * time.Second,
			AccessToken: TokenConfigs{
				Name:       "access_token",
				Expiration: time.Hour,
			},
			ServiceToken: TokenConfigs{
				Name:       "service_token",
				Expiration: time.Hour,
			},
			SessionToken: SessionTokenConfigs{
				Name:          "refresh_token",
				Expiration:    14 * 24 * time.Hour,
				RotateBefore:  24 * time.Hour,
				MaxPerAccount: 5,
			},
			Google: OAuth2Config{
				Name:        "GOOGLE",
				Issuer:      "https://accounts.google.com",
				Scopes:      []string{"openid", "email", "profile"},
				IDField:     "sub",
				EmailField:  "email",
				NameField:   "name",
				AvatarField: "picture",
			},
			Naver: OAuth2Config{
				Name:          "NAVER",
				AuthURL:       "https://nid.naver.com/oauth2.0/authorize",
				TokenURL:      "https://nid.naver.com/oauth2.0/token",
				UserInfoURL:   "https://openapi.naver.com/v1/nid/me",
				Scopes:        []string{"name", "email", "profile_image"},
				RequireState:  true,
				ResponseField: "response",
				IDField:       "id",
				EmailField:    "email",
				NameField:     "name",
				AvatarField:   "profile_image",
			},
		},
		Session: SessionConfigs{
			Name: "studymate_session",
		},
		Anomaly: AnomalyConfigs{
			Window:                 24 * time.Hour,
			AccountsPerIPThreshold: 5,
			IPsPerAccountThreshold: 5,
			CacheTTL:               time.Minute,
		},
		Cleanup: CleanupConfigs{
			Interval:         time.Hour,
			RevokedRetention: 7 * 24 * time.Hour,
		},
		Redis: RedisConfigs{
			Addr: "localhost:6379",
		},
		Prometheus: PrometheusConfigs{
			Enable: true,
			Port:   "9090",
		},
	}
}

// Load returns the default configuration overridden by the TOML file at path
// (if any) and then by environment variables.
func Load(path string) (Configs, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Configs{}, fmt.Errorf("cannot decode %s: %w", path, err)
		}
	}

	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Configs{}, err
	}

	return cfg, nil
}

func overrideFromEnv(cfg *Configs) {
	setIfPresent := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setIfPresent(&cfg.Env, "ENV")
	setIfPresent(&cfg.Database.Host, "MYSQL_HOST")
	setIfPresent(&cfg.Database.Port, "MYSQL_PORT")
	setIfPresent(&cfg.Database.Database, "MYSQL_DATABASE")
	setIfPresent(&cfg.Database.User, "MYSQL_USER")
	setIfPresent(&cfg.Database.Password, "MYSQL_PASSWORD")
	setIfPresent(&cfg.Auth.TokenSecret, "TOKEN_SECRET")
	setIfPresent(&cfg.Session.Secret, "SESSION_SECRET")
	setIfPresent(&cfg.Auth.Google.ClientID, "GOOGLE_CLIENT_ID")
	setIfPresent(&cfg.Auth.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setIfPresent(&cfg.Auth.Google.RedirectURL, "GOOGLE_REDIRECT_URL")
	setIfPresent(&cfg.Auth.Naver.ClientID, "NAVER_CLIENT_ID")
	setIfPresent(&cfg.Auth.Naver.ClientSecret, "NAVER_CLIENT_SECRET")
	setIfPresent(&cfg.Auth.Naver.RedirectURL, "NAVER_REDIRECT_URL")
	setIfPresent(&cfg.Redis.Addr, "REDIS_ADDRESS")
}

func (c Configs) Validate() error {
	if c.Auth.TokenSecret == "" {
		return errors.New("token secret must be configured")
	}

	for _, r := range c.Auth.TokenSecret {
		if r > unicode.MaxASCII {
			return errors.New("token secret must be ASCII")
		}
	}

	if c.Auth.Issuer == "" {
		return errors.New("token issuer must be configured")
	}

	if c.Auth.SessionToken.MaxPerAccount <= 0 {
		return errors.New("session token ceiling must be positive")
	}

	if c.Auth.SessionToken.Expiration <= 0 || c.Auth.AccessToken.Expiration <= 0 {
		return errors.New("token expirations must be positive")
	}

	return nil
}
