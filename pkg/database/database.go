package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/env"
)

// DriverName is the database/sql driver registered by pgx/v5/stdlib. whatsmeow's
// sqlstore uses the same name, so both share one DSN.
const DriverName = "pgx"

var ErrNotFound = errors.New("record not found")

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		DSN:             NormalizeDSN(env.MustGetEnvString("WHATSAPP_DATASTORE_URI")),
		MaxOpenConns:    env.GetEnvPositiveIntOrDefault("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    env.GetEnvPositiveIntOrDefault("DATABASE_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: env.GetEnvDurationOrDefault("DATABASE_CONN_MAX_LIFETIME", 10*time.Minute),
		ConnMaxIdleTime: env.GetEnvDurationOrDefault("DATABASE_CONN_MAX_IDLE_TIME", 3*time.Minute),
	}
}

// DB is the durable persistence facade. Every method is safe for concurrent use.
type DB struct {
	x *sqlx.DB
}

func Open(ctx context.Context, cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database DSN is empty")
	}
	x, err := sqlx.Open(DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	x.SetMaxOpenConns(cfg.MaxOpenConns)
	x.SetMaxIdleConns(cfg.MaxIdleConns)
	x.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	x.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := x.PingContext(ctx); err != nil {
		_ = x.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{x: x}
	if err := db.migrate(ctx); err != nil {
		_ = x.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.x.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS gw_instances (
		name TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'disconnected',
		jid TEXT NOT NULL DEFAULT '',
		push_name TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		webhook_url TEXT NOT NULL DEFAULT '',
		webhook_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_by BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS gw_contacts (
		instance TEXT NOT NULL,
		jid TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		push_name TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (instance, jid)
	)`,
	`CREATE TABLE IF NOT EXISTS gw_groups (
		instance TEXT NOT NULL,
		jid TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		participants INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (instance, jid)
	)`,
	`CREATE TABLE IF NOT EXISTS gw_messages (
		id BIGSERIAL PRIMARY KEY,
		instance TEXT NOT NULL,
		message_id TEXT NOT NULL,
		remote_jid TEXT NOT NULL,
		from_me BOOLEAN NOT NULL DEFAULT FALSE,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		sent_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (instance, message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS gw_messages_instance_remote_idx ON gw_messages (instance, remote_jid, sent_at)`,
	`CREATE TABLE IF NOT EXISTS gw_api_keys (
		id BIGSERIAL PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		key_prefix TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		allowed_instances TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ,
		total_requests BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS gw_webhook_deliveries (
		id BIGSERIAL PRIMARY KEY,
		instance TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS gw_webhook_deliveries_instance_idx ON gw_webhook_deliveries (instance, created_at DESC)`,
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.x.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// NormalizeDSN disables pgx statement caching, which breaks behind transaction
// poolers such as pgbouncer.
func NormalizeDSN(dsn string) string {
	appendParam := func(current string, key string, value string) string {
		if strings.Contains(current, key+"=") {
			return current
		}
		separator := "?"
		if strings.Contains(current, "?") {
			if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
				separator = ""
			} else {
				separator = "&"
			}
		}
		return current + separator + key + "=" + value
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || !strings.Contains(dsn, "://") {
		return dsn
	}
	dsn = appendParam(dsn, "statement_cache_capacity", "0")
	dsn = appendParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn
}
