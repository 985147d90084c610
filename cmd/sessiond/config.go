package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/sso"
)

// fileConfig is the sessiond.yaml layout.
type fileConfig struct {
	Server   serverConfig   `yaml:"server"`
	Store    string         `yaml:"store"`
	Database databaseConfig `yaml:"database"`
	Redis    redisConfig    `yaml:"redis"`
	JWT      jwtConfig      `yaml:"jwt"`
	Refresh  refreshConfig  `yaml:"refresh"`
	Cookies  cookieConfig   `yaml:"cookies"`
	Gate     gateConfig     `yaml:"gate"`
	Audit    bool           `yaml:"audit"`
	Cleanup  cleanupConfig  `yaml:"cleanup"`
	SSO      ssoConfig      `yaml:"sso"`
	Logger   loggerConfig   `yaml:"logger"`
}

type serverConfig struct {
	Addr            string        `yaml:"addr"`
	TrustProxy      bool          `yaml:"trustProxy"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MetricsPath     string        `yaml:"metricsPath"`
}

type databaseConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
	MaxIdleConns int           `yaml:"maxIdleConns"`
	MaxLifetime  time.Duration `yaml:"maxLifetime"`
}

type redisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type jwtConfig struct {
	SigningMethod  string        `yaml:"signingMethod"`
	Secret         string        `yaml:"secret"`
	PrivateKeyFile string        `yaml:"privateKeyFile"`
	PublicKeyFile  string        `yaml:"publicKeyFile"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	AccessTTL      time.Duration `yaml:"accessTTL"`
	KeyID          string        `yaml:"keyId"`
}

type refreshConfig struct {
	TTL              time.Duration `yaml:"ttl"`
	ReuseDetection   bool          `yaml:"reuseDetection"`
	MaxActivePerUser int           `yaml:"maxActivePerUser"`
}

type cookieConfig struct {
	Production *bool  `yaml:"production"`
	Domain     string `yaml:"domain"`
}

type gateConfig struct {
	APIPrefix     string   `yaml:"apiPrefix"`
	AuthPrefix    string   `yaml:"authPrefix"`
	Locales       []string `yaml:"locales"`
	DefaultLocale string   `yaml:"defaultLocale"`
	PublicRoutes  []string `yaml:"publicRoutes"`
	LoginPath     string   `yaml:"loginPath"`
}

type cleanupConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ssoConfig struct {
	Name         string   `yaml:"name"`
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	AuthURL      string   `yaml:"authUrl"`
	TokenURL     string   `yaml:"tokenUrl"`
	UserInfoURL  string   `yaml:"userInfoUrl"`
	RedirectURL  string   `yaml:"redirectUrl"`
	Scopes       []string `yaml:"scopes"`
	SuccessURL   string   `yaml:"successUrl"`
	TrustEmail   bool     `yaml:"trustEmail"`
}

type loggerConfig struct {
	Level string `yaml:"level"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Server: serverConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MetricsPath:     "/metrics",
		},
		Store: "postgres",
		Database: databaseConfig{
			MaxOpenConns: 20,
			MaxIdleConns: 5,
			MaxLifetime:  30 * time.Minute,
		},
		Gate: gateConfig{
			APIPrefix:  "/api",
			AuthPrefix: "/api/auth",
			LoginPath:  "/login",
		},
		Cleanup: cleanupConfig{Interval: time.Hour, Timeout: time.Minute},
		Logger:  loggerConfig{Level: "info"},
	}
}

// loadConfig reads path when it exists and applies environment overrides.
// A missing file is not an error; the defaults are used.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	overrides := []struct {
		env string
		dst *string
	}{
		{"SESSIOND_ADDR", &cfg.Server.Addr},
		{"SESSIOND_STORE", &cfg.Store},
		{"DATABASE_URL", &cfg.Database.DSN},
		{"REDIS_ADDR", &cfg.Redis.Addr},
		{"REDIS_PASSWORD", &cfg.Redis.Password},
		{"JWT_SECRET", &cfg.JWT.Secret},
		{"JWT_PRIVATE_KEY_FILE", &cfg.JWT.PrivateKeyFile},
		{"SSO_CLIENT_ID", &cfg.SSO.ClientID},
		{"SSO_CLIENT_SECRET", &cfg.SSO.ClientSecret},
		{"LOG_LEVEL", &cfg.Logger.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	return cfg, nil
}

// engineConfig maps the file layout onto goSession.Config. Unset fields keep
// the engine defaults.
func (c fileConfig) engineConfig() (goSession.Config, error) {
	cfg := goSession.DefaultConfig()

	if c.JWT.SigningMethod != "" {
		cfg.JWT.SigningMethod = strings.ToLower(c.JWT.SigningMethod)
	}
	switch {
	case c.JWT.PrivateKeyFile != "":
		key, err := os.ReadFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read jwt private key: %w", err)
		}
		cfg.JWT.PrivateKey = key
	case c.JWT.Secret != "":
		cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	}
	if c.JWT.PublicKeyFile != "" {
		key, err := os.ReadFile(c.JWT.PublicKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read jwt public key: %w", err)
		}
		cfg.JWT.PublicKey = key
	}
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.JWT.KeyID = c.JWT.KeyID
	if c.JWT.AccessTTL > 0 {
		cfg.JWT.AccessTTL = c.JWT.AccessTTL
	}

	if c.Refresh.TTL > 0 {
		cfg.Refresh.TTL = c.Refresh.TTL
	}
	cfg.Refresh.ReuseDetection = c.Refresh.ReuseDetection
	cfg.Refresh.MaxActivePerUser = c.Refresh.MaxActivePerUser

	if c.Cookies.Production != nil {
		cfg.Cookies.Production = *c.Cookies.Production
	}
	cfg.Cookies.Domain = c.Cookies.Domain
	cfg.Audit.Enabled = c.Audit

	return cfg, cfg.Validate()
}

func (c fileConfig) gate(cookies goSession.CookieConfig) middleware.GateConfig {
	return middleware.GateConfig{
		APIPrefix:     c.Gate.APIPrefix,
		Locales:       c.Gate.Locales,
		DefaultLocale: c.Gate.DefaultLocale,
		PublicRoutes:  c.Gate.PublicRoutes,
		LoginPath:     c.Gate.LoginPath,
		AccessCookie:  cookies.AccessName,
		RefreshCookie: cookies.RefreshName,
	}
}

func (c fileConfig) ssoEnabled() bool {
	return c.SSO.ClientID != ""
}

func (c fileConfig) ssoProvider() (*sso.Provider, error) {
	name := c.SSO.Name
	if name == "" {
		name = "oidc"
	}
	return sso.NewProvider(name, sso.Config{
		ClientID:     c.SSO.ClientID,
		ClientSecret: c.SSO.ClientSecret,
		AuthURL:      c.SSO.AuthURL,
		TokenURL:     c.SSO.TokenURL,
		UserInfoURL:  c.SSO.UserInfoURL,
		RedirectURL:  c.SSO.RedirectURL,
		Scopes:       c.SSO.Scopes,
		TrustEmail:   c.SSO.TrustEmail,
	})
}

func (c fileConfig) logLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Logger.Level))
	if err != nil || c.Logger.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
