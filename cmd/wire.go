package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/bnema/procure-cli/internal/adapters/authapi"
	"github.com/bnema/procure-cli/internal/adapters/credfile"
	statusadapter "github.com/bnema/procure-cli/internal/adapters/render/status"
	"github.com/bnema/procure-cli/internal/application"
	"github.com/bnema/procure-cli/internal/gateway"
	"github.com/bnema/procure-cli/internal/ports"
)

type app struct {
	store          *credfile.Store
	gateway        *gateway.Client
	authClient     authapi.Client
	log            zerolog.Logger
	clock          ports.Clock
	warnWindow     time.Duration
	checkInterval  time.Duration
	statusRenderer func(statusadapter.View, statusadapter.RenderOptions) (string, error)
}

func wireApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := newLogger(cfg.GetString("log.level"))

	sessionPath := cfg.GetString("session.path")
	store, err := credfile.NewStore(sessionPath, log)
	if err != nil {
		return nil, fmt.Errorf("wire session store: %w", err)
	}

	authClient := authapi.Client{
		API: authapi.API{
			BaseURL:   cfg.GetString("api.base_url"),
			LoginPath: cfg.GetString("api.login_path"),
			RenewPath: cfg.GetString("api.renew_path"),
		},
		HTTPClient:     http.DefaultClient,
		RequestTimeout: cfg.GetDuration("api.timeout"),
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:    cfg.GetString("api.base_url"),
		HTTPClient: http.DefaultClient,
		Store:      store,
		Auth:       authClient,
		Logger:     log,
		Clock:      ports.SystemClock{},
	})
	if err != nil {
		return nil, fmt.Errorf("wire request gateway: %w", err)
	}

	return &app{
		store:          store,
		gateway:        gw,
		authClient:     authClient,
		log:            log,
		clock:          ports.SystemClock{},
		warnWindow:     cfg.GetDuration("session.warn_window"),
		checkInterval:  cfg.GetDuration("session.check_interval"),
		statusRenderer: statusadapter.Render,
	}, nil
}

// newManager builds a session lifecycle manager backed by the shared
// store and the gateway, and forwards renewal outcomes from request
// traffic into it. Callers own Start.
func (a *app) newManager() (*application.SessionManager, error) {
	manager, err := application.NewSessionManager(application.SessionManagerConfig{
		Store:         a.store,
		Feed:          a.store,
		Renewer:       a.gateway,
		Clock:         a.clock,
		Logger:        a.log,
		WarnWindow:    a.warnWindow,
		CheckInterval: a.checkInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("wire session manager: %w", err)
	}

	a.gateway.OnRenewal(func(event gateway.RenewalEvent) {
		if event.Err != nil {
			manager.HandleRenewalFailure(context.Background(), event.Err)
			return
		}
		manager.HandleRenewalSuccess(*event.Session)
	})

	return manager, nil
}

func loadConfig() (*viper.Viper, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	configDir := filepath.Join(homeDir, ".procure")

	cfg := viper.New()
	cfg.SetDefault("api.base_url", "https://app.procure.example/api")
	cfg.SetDefault("api.login_path", "/auth/login")
	cfg.SetDefault("api.renew_path", "/auth/refresh-token")
	cfg.SetDefault("api.timeout", 30*time.Second)
	cfg.SetDefault("session.path", filepath.Join(configDir, "session.toml"))
	cfg.SetDefault("session.warn_window", application.DefaultWarnWindow)
	cfg.SetDefault("session.check_interval", application.DefaultCheckInterval)
	cfg.SetDefault("log.level", "warn")

	cfg.SetEnvPrefix("PROCURE")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetConfigName("config")
	cfg.SetConfigType("toml")
	cfg.AddConfigPath(configDir)
	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.WarnLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(parsed).
		With().
		Timestamp().
		Logger()
}
