// Package bootstrap wires the ledger services from configuration. It is
// shared by cmd/api and cmd/walletctl.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-wallet/internal/audit"
	"storefront-wallet/internal/config"
	"storefront-wallet/internal/events"
	"storefront-wallet/internal/metrics"
	"storefront-wallet/internal/reconcile"
	"storefront-wallet/internal/wallet"
	"storefront-wallet/internal/walletcache"
	"storefront-wallet/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// Deps holds every long-lived dependency of a process. Redis is nil when
// the display cache is disabled.
type Deps struct {
	Config config.Config

	DB    *sql.DB
	Redis *redis.Client

	Metrics    *metrics.Metrics
	Store      *wallet.PostgresStore
	Audit      *audit.Service
	Wallet     *wallet.Service
	Reconcile  *reconcile.Service
	Dispatcher *events.Dispatcher
}

// RatesFrom builds the conversion table from the ledger config.
func RatesFrom(cfg config.LedgerConfig) wallet.Rates {
	return wallet.DefaultRates().WithCoinValues(cfg.LoyaltyCoinValue, cfg.InstagramCoinValue)
}

// RulesFrom builds the event earning rules. Non-positive values keep the default.
func RulesFrom(cfg config.EventsConfig) events.Rules {
	r := events.DefaultRules()
	if cfg.OrderCoinsPerUnit.IsPositive() {
		r.OrderCoinsPerUnit = cfg.OrderCoinsPerUnit
	}
	if cfg.AffiliateCommissionRate.IsPositive() {
		r.AffiliateCommissionRate = cfg.AffiliateCommissionRate
	}
	if cfg.ReferralBonusCoins.IsPositive() {
		r.ReferralBonusCoins = cfg.ReferralBonusCoins
	}
	return r
}

// RetryFrom builds the consumer retry policy.
func RetryFrom(cfg config.EventsConfig) events.RetryPolicy {
	return events.RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff}
}

// Open connects to Postgres (and Redis when configured) and builds the services.
func Open(ctx context.Context, cfg config.Config) (*Deps, error) {
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	d := &Deps{Config: cfg, DB: db}

	if cfg.App.AutoMigrate {
		if err := d.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		d.Redis = rdb
	}

	d.wire()
	return d, nil
}

func (d *Deps) wire() {
	rates := RatesFrom(d.Config.Ledger)

	d.Metrics = metrics.New()
	d.Store = wallet.NewPostgresStore(d.DB, rates)
	d.Audit = audit.NewService(audit.NewPostgresRepo(d.DB))

	opts := []wallet.Option{
		wallet.WithRates(rates),
		wallet.WithObserver(d.Metrics),
		wallet.WithAuditRecorder(wallet.AuditAdapter{Audit: d.Audit}),
	}
	if d.Redis != nil {
		opts = append(opts, wallet.WithSnapshotCache(walletcache.New(d.Redis, d.Config.Cache.TTL)))
	}
	d.Wallet = wallet.NewService(d.Store, opts...)
	d.Reconcile = reconcile.NewService(d.Store, rates)
	d.Dispatcher = events.NewDispatcher(events.NewAdapter(d.Wallet, RulesFrom(d.Config.Events)), d.Metrics)
}

// Migrate applies the wallet and audit schemas.
func (d *Deps) Migrate(ctx context.Context) error {
	if err := wallet.Migrate(ctx, d.DB); err != nil {
		return err
	}
	return audit.Migrate(ctx, d.DB)
}

// Close releases connections. Safe to call once.
func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
