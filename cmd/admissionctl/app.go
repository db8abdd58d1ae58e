package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for the sql and sqlx adapters

	"github.com/AntonStoeckl/library-admission-go/admission"
	"github.com/AntonStoeckl/library-admission-go/admission/engine"
	"github.com/AntonStoeckl/library-admission-go/admission/memengine"
	"github.com/AntonStoeckl/library-admission-go/admission/postgresengine"
	"github.com/AntonStoeckl/library-admission-go/oteladapters"
)

const (
	logMsgStoreOpened     = "admission store opened"
	logMsgTelemetryFailed = "collecting telemetry failed"

	logAttrDriver = "driver"
)

// app is everything one subcommand run needs.
type app struct {
	cfg       config
	out       io.Writer
	errOut    io.Writer
	logger    *oteladapters.SlogBridgeLogger
	telemetry *telemetry
	store     admission.Store
	pgStore   *postgresengine.Store // nil for the memory driver
	engine    *engine.Engine
	closers   []func() error
}

func newApp(ctx context.Context, cfg config, out, errOut io.Writer) (*app, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	level, _ := cfg.slogLevel()
	a := &app{
		cfg:    cfg,
		out:    out,
		errOut: errOut,
		logger: oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: level})),
	}

	if cfg.OTel {
		a.telemetry = newTelemetry()
		a.closers = append(a.closers, a.telemetry.shutdown)
	}

	if err := a.openStore(ctx); err != nil {
		_ = a.close()
		return nil, err
	}

	a.logger.DebugContext(ctx, logMsgStoreOpened, logAttrDriver, cfg.Driver)

	e, err := engine.New(a.store, a.engineOptions()...)
	if err != nil {
		_ = a.close()
		return nil, err
	}

	a.engine = e

	return a, nil
}

func (a *app) engineOptions() []engine.Option {
	options := []engine.Option{
		engine.WithPolicy(a.cfg.policy()),
		engine.WithContextualLogger(a.logger),
	}

	if a.cfg.StrictQuota {
		options = append(options, engine.WithStrictActorQuota())
	}

	if a.telemetry != nil {
		options = append(options,
			engine.WithMetrics(a.telemetry.metrics),
			engine.WithTracing(a.telemetry.tracing),
		)
	}

	return options
}

func (a *app) storeOptions() []postgresengine.Option {
	options := []postgresengine.Option{
		postgresengine.WithLockTimeout(a.cfg.LockTimeout),
		postgresengine.WithContextualLogger(a.logger),
	}

	if a.telemetry != nil {
		options = append(options,
			postgresengine.WithMetrics(a.telemetry.metrics),
			postgresengine.WithTracing(a.telemetry.tracing),
		)
	}

	return options
}

func (a *app) openStore(ctx context.Context) error {
	var (
		pgStore *postgresengine.Store
		err     error
	)

	switch a.cfg.Driver {
	case driverMemory:
		a.store, err = memengine.NewStore(memengine.WithLockTimeout(a.cfg.LockTimeout))
		return err

	case driverPGX:
		pool, poolErr := pgxpool.New(ctx, a.cfg.DatabaseURL)
		if poolErr != nil {
			return fmt.Errorf("connecting to postgres: %w", poolErr)
		}

		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		if pingErr := pool.Ping(ctx); pingErr != nil {
			return fmt.Errorf("pinging postgres: %w", pingErr)
		}

		pgStore, err = postgresengine.NewStoreFromPGXPool(pool, a.storeOptions()...)

	case driverSQL:
		db, openErr := sql.Open("postgres", a.cfg.DatabaseURL)
		if openErr != nil {
			return fmt.Errorf("connecting to postgres: %w", openErr)
		}

		a.closers = append(a.closers, db.Close)

		if pingErr := db.PingContext(ctx); pingErr != nil {
			return fmt.Errorf("pinging postgres: %w", pingErr)
		}

		pgStore, err = postgresengine.NewStoreFromSQLDB(db, a.storeOptions()...)

	case driverSQLX:
		db, connectErr := sqlx.ConnectContext(ctx, "postgres", a.cfg.DatabaseURL)
		if connectErr != nil {
			return fmt.Errorf("connecting to postgres: %w", connectErr)
		}

		a.closers = append(a.closers, db.Close)
		pgStore, err = postgresengine.NewStoreFromSQLX(db, a.storeOptions()...)
	}

	if err != nil {
		return err
	}

	a.pgStore = pgStore
	a.store = pgStore

	return nil
}

// postgres returns the Postgres store or errPostgresNeeded for the memory driver.
func (a *app) postgres() (*postgresengine.Store, error) {
	if a.pgStore == nil {
		return nil, errPostgresNeeded
	}

	return a.pgStore, nil
}

// finish prints the telemetry summary, if enabled, and releases all resources.
func (a *app) finish(ctx context.Context) error {
	if a.telemetry != nil {
		summary, err := a.telemetry.summary(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, logMsgTelemetryFailed, "error", err.Error())
		} else {
			_ = writeJSON(a.errOut, summary)
		}
	}

	return a.close()
}

// close runs the closers in reverse order.
func (a *app) close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, a.closers[i]())
	}

	a.closers = nil

	return err
}
