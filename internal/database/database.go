// Package database is the Postgres collaborator: the bet record sink, a
// wallet store with row locks, and schema migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/config"
)

type Service struct {
	db  *sql.DB
	cfg config.DatabaseConfig
}

func New(ctx context.Context, cfg config.DatabaseConfig) (*Service, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Str("component", "database").Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected")
	return &Service{db: db, cfg: cfg}, nil
}

func (s *Service) DB() *sql.DB { return s.db }

// Health reports connection pool statistics.
func (s *Service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}
	stats["status"] = "up"
	stats["message"] = "It's healthy"

	db := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(db.OpenConnections)
	stats["in_use"] = strconv.Itoa(db.InUse)
	stats["idle"] = strconv.Itoa(db.Idle)
	stats["wait_count"] = strconv.FormatInt(db.WaitCount, 10)
	stats["wait_duration"] = db.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(db.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(db.MaxLifetimeClosed, 10)

	if db.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if db.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}
	return stats
}

func (s *Service) Close() error {
	log.Info().Str("component", "database").Str("database", s.cfg.Database).Msg("disconnected")
	return s.db.Close()
}

// lock and serialization failures are worth retrying
var retryable = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// mapError turns retryable Postgres failures into conflicts and leaves the
// rest wrapped as they are.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && retryable[pgErr.Code] {
		return apperr.Conflict(op, "%s", pgErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Conflict(op, "%v", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
