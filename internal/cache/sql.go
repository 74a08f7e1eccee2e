package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	_ "modernc.org/sqlite"             // registers the sqlite driver

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS extraction_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	expires_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS bank_stats (
	bank_name  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at BIGINT NOT NULL
);`

// SQLStore keeps cache blobs and learned bank stats in a relational
// database through database/sql. The schema is portable between the
// embedded sqlite driver and Postgres via pgx; only the placeholder style
// differs, handled by rebind.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore opens the database, verifies connectivity, and ensures the
// schema. driver is "sqlite" or "postgres".
func NewSQLStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var driverName string
	var postgres bool
	switch driver {
	case "sqlite":
		driverName = "sqlite"
	case "postgres", "pgx":
		driverName = "pgx"
		postgres = true
	default:
		return nil, common.NewAppError(common.CodeConfig,
			fmt.Sprintf("unsupported cache db driver %q", driver), nil)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if !postgres {
		// sqlite allows a single writer; serializing connections avoids
		// SQLITE_BUSY under the worker pool.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure cache schema: %w", err)
	}

	logger.Info("cache.store.open", "driver", driver)
	return &SQLStore{db: db, postgres: postgres, logger: logger}, nil
}

// rebind converts ?-style placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var payload string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT payload, expires_at FROM extraction_cache WHERE cache_key = ?`),
		key).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache select: %w", err)
	}
	if expiresAt > 0 && time.Now().Unix() > expiresAt {
		_ = s.Delete(ctx, key)
		return nil, common.ErrNotFound
	}
	return []byte(payload), nil
}

// Put stores the blob. A zero ttl means no native expiry; a negative ttl
// writes an already-stale row.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl != 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO extraction_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at`),
		key, string(value), expiresAt)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM extraction_cache WHERE cache_key = ?`), key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, payload, expires_at FROM extraction_cache`)
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	defer rows.Close()

	now := time.Now().Unix()
	out := make(map[string][]byte)
	for rows.Next() {
		var key, payload string
		var expiresAt int64
		if err := rows.Scan(&key, &payload, &expiresAt); err != nil {
			return nil, fmt.Errorf("cache list scan: %w", err)
		}
		if expiresAt > 0 && now > expiresAt {
			continue
		}
		out[key] = []byte(payload)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping reports database connectivity for health checks.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveBankStats upserts one bank's learned counters. Implements the prompt
// adapter's stats persistence contract.
func (s *SQLStore) SaveBankStats(ctx context.Context, stats entity.BankStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal bank stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO bank_stats (bank_name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (bank_name) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`),
		stats.CanonicalName, string(payload), stats.LastUpdated.Unix())
	if err != nil {
		return fmt.Errorf("bank stats upsert: %w", err)
	}
	return nil
}

// LoadBankStats returns every persisted bank stat row.
func (s *SQLStore) LoadBankStats(ctx context.Context) ([]entity.BankStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM bank_stats`)
	if err != nil {
		return nil, fmt.Errorf("bank stats select: %w", err)
	}
	defer rows.Close()

	var out []entity.BankStats
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("bank stats scan: %w", err)
		}
		var stats entity.BankStats
		if err := json.Unmarshal([]byte(payload), &stats); err != nil {
			s.logger.Warn("cache.stats.corrupt", "err", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}
