package storage

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vigilhq/vigil/pkg/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres implements Store on a pgx connection pool. Every claim query
// uses FOR UPDATE SKIP LOCKED so concurrent workers of the same
// component receive disjoint batches.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database described by dsn and verifies
// the connection.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithComponent("storage").Debug().
		Int32("max_conns", cfg.MaxConns).
		Msg("connected to postgres")
	return &Postgres{pool: pool}, nil
}

// Migrate applies all pending schema migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Begin opens a transaction.
func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling
// back on error.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Monitors() MonitorRepo           { return &pgMonitorRepo{tx: t.tx} }
func (t *pgTx) Tasks() TaskRepo                 { return &pgTaskRepo{tx: t.tx} }
func (t *pgTx) TaskRuns() TaskRunRepo           { return &pgTaskRunRepo{tx: t.tx} }
func (t *pgTx) Incidents() IncidentRepo         { return &pgIncidentRepo{tx: t.tx} }
func (t *pgTx) Events() EventRepo               { return &pgEventRepo{tx: t.tx} }
func (t *pgTx) Notifications() NotificationRepo { return &pgNotificationRepo{tx: t.tx} }

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}
