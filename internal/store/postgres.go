package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against the given Postgres URL.
// The pool is shared between the reconciler and the HTTP front.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(5)
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadAllNodes(ctx context.Context) ([]NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pubkey, authority, uri FROM nodes ORDER BY pubkey`)
	if err != nil {
		return nil, mapError("reading nodes", err)
	}
	defer rows.Close()

	var nodes []NodeRecord
	for rows.Next() {
		var n NodeRecord
		if err := rows.Scan(&n.Pubkey, &n.Authority, &n.URI); err != nil {
			return nil, mapError("scanning node row", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterating node rows", err)
	}
	return nodes, nil
}

func (s *PostgresStore) ApplyReconciliation(ctx context.Context, upserts []NodeRecord, deletes []string, newTotal int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return mapError("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, n := range upserts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (pubkey, authority, uri)
			VALUES ($1, $2, $3)
			ON CONFLICT (pubkey) DO UPDATE
			SET authority = EXCLUDED.authority,
			    uri = EXCLUDED.uri`,
			n.Pubkey, n.Authority, n.URI,
		)
		if err != nil {
			return mapError(fmt.Sprintf("upserting node %s", n.Pubkey), err)
		}
	}

	if len(deletes) > 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE pubkey = ANY($1)`, pq.Array(deletes))
		if err != nil {
			return mapError("deleting nodes", err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO network_stats (total_nodes) VALUES ($1)`, newTotal)
	if err != nil {
		return mapError("appending stats snapshot", err)
	}

	if err := tx.Commit(); err != nil {
		return mapError("committing reconciliation", err)
	}
	return nil
}

func (s *PostgresStore) LatestStats(ctx context.Context) (*StatsSnapshot, error) {
	var snap StatsSnapshot
	row := s.db.QueryRowContext(ctx, `SELECT id, total_nodes FROM network_stats ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&snap.ID, &snap.TotalNodes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapError("reading latest stats", err)
	}
	return &snap, nil
}

// mapError folds driver errors into the store taxonomy. Serialization
// failures and deadlocks surface as ErrConflict so the reconciler retries
// them on the next cycle; integrity errors surface as ErrConstraint.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "40001" || pqErr.Code == "40P01":
			return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
		case pqErr.Code.Class() == "23":
			return fmt.Errorf("%w: %s: %v", ErrConstraint, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
