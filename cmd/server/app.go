package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/crm/internal/auth"
	"github.com/JonMunkholm/crm/internal/config"
	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/store/memory"
	"github.com/JonMunkholm/crm/internal/store/postgres"
)

// app bundles the collaborators built from configuration.
type app struct {
	store  core.Store
	tokens *auth.Issuer
	svc    *core.Service
	close  func()
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	if strings.EqualFold(cfg.Store.Driver, "memory") {
		slog.Warn("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}

	pg, err := openPostgres(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	pg, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pg, nil
}

// newApp builds the store, token issuer and service.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// The memory store has no schema; postgres tables are created on demand.
	if pg, ok := store.(*postgres.Store); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			closeStore()
			return nil, err
		}
	}

	tokens := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.App.Name)

	svc, err := core.NewService(core.Deps{
		Store:   store,
		Limiter: core.NewRateLimiter(),
		Tokens:  tokens,
		Hasher:  auth.NewHasher(cfg.Auth.BcryptCost),
	}, core.OptionsFromConfig(cfg))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("create service: %w", err)
	}

	return &app{store: store, tokens: tokens, svc: svc, close: closeStore}, nil
}
