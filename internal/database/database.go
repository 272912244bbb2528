// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/eventsphere/engine/internal/config"
)

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log *logrus.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// Sensible pool defaults for a small service.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				break
			}
			pool.Close()
		}
		log.WithError(err).Warnf("db connect attempt %d/5 failed, retrying in 2s", attempt)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return pool, nil
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id              UUID PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL DEFAULT '',
			venue           TEXT NOT NULL DEFAULT '',
			start_time      TIMESTAMPTZ NOT NULL,
			end_time        TIMESTAMPTZ NOT NULL,
			total_seats     INT NOT NULL CHECK (total_seats >= 0),
			seats_available INT NOT NULL CHECK (seats_available >= 0 AND seats_available <= total_seats),
			status          TEXT NOT NULL,
			organizer_id    TEXT NOT NULL,
			version         BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS registrations (
			id            UUID PRIMARY KEY,
			event_id      UUID NOT NULL REFERENCES events(id),
			user_id       TEXT NOT NULL,
			status        TEXT NOT NULL,
			registered_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS registrations_active_pair
			ON registrations (event_id, user_id)
			WHERE status <> 'CANCELLED'`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id        UUID PRIMARY KEY,
			user_id   TEXT NOT NULL,
			event_id  UUID NOT NULL REFERENCES events(id),
			method    TEXT NOT NULL,
			marked_at TIMESTAMPTZ NOT NULL,
			UNIQUE (event_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS event_edit_requests (
			id             UUID PRIMARY KEY,
			event_id       UUID NOT NULL REFERENCES events(id),
			requester_id   TEXT NOT NULL,
			original_data  JSONB NOT NULL,
			requested_data JSONB NOT NULL,
			status         TEXT NOT NULL,
			admin_notes    TEXT NOT NULL DEFAULT '',
			processed_by   TEXT,
			processed_at   TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
