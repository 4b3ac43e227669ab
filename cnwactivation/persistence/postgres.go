package persistence

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTable = "cnw_activation_state"

// validIdentifier matches safe PostgreSQL identifiers (letters, digits, underscores).
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOption configures a PostgresProvider.
type PostgresOption func(*PostgresProvider)

// WithTableName sets the PostgreSQL table name. Default: "cnw_activation_state".
func WithTableName(name string) PostgresOption {
	return func(p *PostgresProvider) {
		p.tableName = name
	}
}

// PostgresProvider implements Provider using PostgreSQL.
type PostgresProvider struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewPostgresProvider creates a new PostgreSQL-backed provider.
// It auto-creates the table on initialization.
func NewPostgresProvider(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresProvider, error) {
	p := &PostgresProvider{
		pool:      pool,
		tableName: defaultPostgresTable,
	}
	for _, opt := range opts {
		opt(p)
	}
	if !validIdentifier.MatchString(p.tableName) {
		return nil, fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", p.tableName)
	}
	if err := p.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return p, nil
}

func (p *PostgresProvider) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, p.tableName)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresProvider) Store(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, p.tableName)
	if _, err := p.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("store value: %w", err)
	}
	return nil
}

func (p *PostgresProvider) Read(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.tableName)
	var value string
	err := p.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read value: %w", err)
	}
	return value, true, nil
}

func (p *PostgresProvider) Close(_ context.Context) error {
	return nil // user manages the pgxpool.Pool lifecycle
}
