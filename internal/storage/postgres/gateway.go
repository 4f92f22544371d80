// Package postgres provides a Postgres-backed persistence gateway.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/dataset"
	"github.com/JakeFAU/ratings-crawler/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the gateway uses.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Gateway stores the dataset tables in Postgres.
type Gateway struct {
	pool   pool
	hasher crawler.Hasher
	clock  crawler.Clock
	logger *zap.Logger
}

var _ store.Gateway = (*Gateway)(nil)

// Connect opens a pool for cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// New constructs a Gateway from an existing pool.
func New(p pool, hasher crawler.Hasher, clock crawler.Clock, logger *zap.Logger) (*Gateway, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{pool: p, hasher: hasher, clock: clock, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (g *Gateway) Close() {
	if g == nil || g.pool == nil {
		return
	}
	g.pool.Close()
}

// EnsureSchema creates the tables and the translated view when absent.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := g.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// LoadUsers reads user_mappings.
func (g *Gateway) LoadUsers(ctx context.Context) (dataset.UserTable, error) {
	rows, err := g.pool.Query(ctx, selectUsers)
	if err != nil {
		return nil, fmt.Errorf("query user_mappings: %w", err)
	}
	defer rows.Close()
	users := dataset.UserTable{}
	for rows.Next() {
		var (
			name string
			id   int64
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("%w: user_mappings: %v", store.ErrSchema, err)
		}
		users[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read user_mappings: %w", err)
	}
	return users, nil
}

// LoadItems reads film_mappings.
func (g *Gateway) LoadItems(ctx context.Context) (dataset.ItemTable, error) {
	rows, err := g.pool.Query(ctx, selectItems)
	if err != nil {
		return nil, fmt.Errorf("query film_mappings: %w", err)
	}
	defer rows.Close()
	items := dataset.ItemTable{}
	for rows.Next() {
		var (
			id    int64
			label string
		)
		if err := rows.Scan(&id, &label); err != nil {
			return nil, fmt.Errorf("%w: film_mappings: %v", store.ErrSchema, err)
		}
		items[id] = label
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read film_mappings: %w", err)
	}
	return items, nil
}

// LoadRatings reads ratings in their stored order.
func (g *Gateway) LoadRatings(ctx context.Context) (*dataset.RatingSet, error) {
	rows, err := g.pool.Query(ctx, selectRatings)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()
	set := dataset.NewRatingSet()
	for rows.Next() {
		var r dataset.Rating
		if err := rows.Scan(&r.UserID, &r.ItemID, &r.Score); err != nil {
			return nil, fmt.Errorf("%w: ratings: %v", store.ErrSchema, err)
		}
		set.Add(r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ratings: %w", err)
	}
	return set, nil
}

// LoadUpdateLog reads user_updates. Query failures are logged and yield an
// empty log.
func (g *Gateway) LoadUpdateLog(ctx context.Context) (dataset.UpdateLog, error) {
	log := dataset.UpdateLog{}
	rows, err := g.pool.Query(ctx, selectUpdates)
	if err != nil {
		g.logger.Warn("update log unreadable, starting empty", zap.Error(err))
		return log, nil
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			day  time.Time
		)
		if err := rows.Scan(&name, &day); err != nil {
			g.logger.Warn("update log unreadable, starting empty", zap.Error(err))
			return dataset.UpdateLog{}, nil
		}
		log[name] = dataset.Day(day)
	}
	if err := rows.Err(); err != nil {
		g.logger.Warn("update log unreadable, starting empty", zap.Error(err))
		return dataset.UpdateLog{}, nil
	}
	return log, nil
}

// Save replaces the latest tables in one transaction and appends a snapshot
// when versioned.
func (g *Gateway) Save(ctx context.Context, snap store.Snapshot, versioned bool) (store.SaveReport, error) {
	rows := snap.Ratings.Rows()
	if _, err := dataset.Translate(rows, snap.Users, snap.Items); err != nil {
		return store.SaveReport{}, fmt.Errorf("translate ratings: %w", err)
	}
	raw, err := store.EncodeRatings(rows)
	if err != nil {
		return store.SaveReport{}, err
	}
	digest, err := g.hasher.Hash(raw)
	if err != nil {
		return store.SaveReport{}, fmt.Errorf("hash ratings: %w", err)
	}

	report := store.SaveReport{
		Users:   len(snap.Users),
		Items:   len(snap.Items),
		Ratings: len(rows),
		Digest:  digest,
	}
	takenAt := g.clock.Now().UTC()
	err = g.withTx(ctx, func(tx pgx.Tx) error {
		if err := replace(ctx, tx, "user_mappings", userColumns, userRows(snap.Users)); err != nil {
			return err
		}
		if err := replace(ctx, tx, "film_mappings", itemColumns, itemRows(snap.Items)); err != nil {
			return err
		}
		if err := replace(ctx, tx, "ratings", ratingColumns, ratingRows(rows)); err != nil {
			return err
		}
		if !versioned {
			return nil
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"ratings_snapshots"}, snapshotColumns,
			pgx.CopyFromRows(snapshotRows(takenAt, digest, rows))); err != nil {
			return fmt.Errorf("copy ratings_snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.SaveReport{}, err
	}
	report.URIs = []string{"postgres:user_mappings", "postgres:film_mappings", "postgres:ratings"}
	if versioned {
		report.SnapshotURI = fmt.Sprintf("postgres:ratings_snapshots@%s", takenAt.Format(time.RFC3339))
		report.URIs = append(report.URIs, report.SnapshotURI)
	}
	g.logger.Info("dataset saved",
		zap.Int("users", report.Users),
		zap.Int("items", report.Items),
		zap.Int("ratings", report.Ratings),
		zap.String("digest", report.Digest),
		zap.Bool("versioned", versioned),
	)
	return report, nil
}

// SaveUpdateLog replaces user_updates.
func (g *Gateway) SaveUpdateLog(ctx context.Context, log dataset.UpdateLog) error {
	return g.withTx(ctx, func(tx pgx.Tx) error {
		return replace(ctx, tx, "user_updates", updateColumns, updateRows(log))
	})
}

func (g *Gateway) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func replace(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	return nil
}
