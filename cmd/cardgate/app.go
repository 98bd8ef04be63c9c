package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mtgmarket/cardgate/pkg/cache"
	"github.com/mtgmarket/cardgate/pkg/cards"
	"github.com/mtgmarket/cardgate/pkg/catalog"
	"github.com/mtgmarket/cardgate/pkg/config"
	"github.com/mtgmarket/cardgate/pkg/ledger"
	"github.com/mtgmarket/cardgate/pkg/ratelimit"
)

var configPath string

// app is the wired card service plus whatever must be closed on exit.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *cards.Service
	ledger  *ledger.Ledger
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newStore(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Store, func() error, error) {
	if cfg.Backend != "redis" {
		return ratelimit.NewMemoryStore(), nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	store, err := ratelimit.NewRedisStore(rdb,
		ratelimit.WithKeyPrefix(cfg.Redis.KeyPrefix),
		ratelimit.WithIdleTTL(cfg.Redis.IdleTTL),
	)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return store, rdb.Close, nil
}

// newApp loads the config and wires limiter, catalog client, cache and
// service together.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{cfg: cfg, logger: newLogger(cfg.Log)}

	store, closeStore, err := newStore(ctx, cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	registry := ratelimit.NewRegistry(store,
		ratelimit.WithPollInterval(cfg.RateLimit.PollInterval),
		ratelimit.WithLogger(a.logger),
	)
	limiter, err := registry.Limiter(cfg.RateLimit.Key, cfg.RateLimit.Limit)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	opts := []catalog.Option{catalog.WithLogger(a.logger)}
	if cfg.Ledger.Enabled {
		a.ledger, err = ledger.New(cfg.Ledger.DBPath)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		a.closers = append(a.closers, a.ledger.Close)
		opts = append(opts, catalog.WithRecorder(a.ledger))
	}

	client, err := catalog.New(catalog.Config{
		BaseURL:   cfg.Catalog.BaseURL,
		UserAgent: cfg.Catalog.UserAgent,
		Timeout:   cfg.Catalog.Timeout,
	}, limiter, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init catalog client: %w", err)
	}

	c, err := cache.New(cfg.Cache.MaxEntries, cfg.Cache.DefaultTTL)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}

	a.service = cards.NewService(client, c, cards.TTLPolicy{
		Search: cfg.Cache.TTL.Search,
		Card:   cfg.Cache.TTL.Card,
		Prints: cfg.Cache.TTL.Prints,
		Named:  cfg.Cache.TTL.Named,
	})
	return a, nil
}
