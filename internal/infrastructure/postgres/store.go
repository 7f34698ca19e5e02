// Package postgres stores availability flags, holders and reservations in
// PostgreSQL through a pgx connection pool. Queries are built with goqu.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/jackc/pgx/v5/pgxpool"

	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
)

const (
	dialectPostgres = "postgres"

	tableBooks        = "books"
	tableHolders      = "holders"
	tableReservations = "reservations"

	colID          = "id"
	colAvailable   = "available"
	colUpdatedAt   = "updated_at"
	colName        = "name"
	colHolderID    = "holder_id"
	colBookID      = "book_id"
	colStatus      = "status"
	colCreatedAt   = "created_at"
	colCancelledAt = "cancelled_at"
)

// ErrBuildingQueryFailed wraps goqu builder failures.
var ErrBuildingQueryFailed = errors.New("postgres: building query failed")

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool    *pgxpool.Pool
	builder goqu.DialectWrapper
	now     func() time.Time
}

// Open connects a pool for dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return NewStoreFromPGXPool(pool), nil
}

func NewStoreFromPGXPool(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		builder: goqu.Dialect(dialectPostgres),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Inventory() *InventoryRepository { return &InventoryRepository{s: s} }

func (s *Store) Ledger(ids domres.IDGenerator) *Ledger { return &Ledger{s: s, ids: ids} }

func (s *Store) Holders() *HolderDirectory { return &HolderDirectory{s: s} }

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func build(b sqlBuilder) (string, []any, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return "", nil, errors.Join(ErrBuildingQueryFailed, err)
	}
	return query, args, nil
}
