package downstream

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // postgres driver
)

// Postgres writes processed payloads into a Postgres table. It is the
// non-demo downstream: one call is one insert.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool for the given DSN and verifies it
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresWithDB wraps an existing connection pool, used in tests
func NewPostgresWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS processed_tasks (
            id         BIGSERIAL PRIMARY KEY,
            payload    JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

type postgresResult struct {
	Status string `json:"status"`
	RowID  int64  `json:"row_id"`
}

// Call inserts the payload and returns the new row id
func (p *Postgres) Call(ctx context.Context, payload []byte) ([]byte, error) {
	query := `
        INSERT INTO processed_tasks (payload, created_at)
        VALUES ($1, now())
        RETURNING id
    `

	var rowID int64
	if err := p.db.QueryRowContext(ctx, query, payload).Scan(&rowID); err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}

	return json.Marshal(postgresResult{Status: "ok", RowID: rowID})
}

// Close releases the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}
