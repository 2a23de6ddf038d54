// Package postgres implements the MetadataStore, EventLog, and AuditSink
// ports against PostgreSQL. It is the production implementation of the
// durable side of the coordination hub; tests wire in-memory fakes
// instead (see internal/ports for the interfaces this package satisfies).
//
// Connection pooling, configuration validation, and the overall
// CREATE-TABLE-IF-NOT-EXISTS migration style are carried over from the
// teacher's internal/db/database.go, rewritten against RingForge's own
// schema (tenants, fleets, agents, api_keys, sessions, groups,
// group_members, fleet_positions, events, audit_log) instead of the
// teacher's ~82-table application catalog.
package postgres

import (
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/streamspace-dev/ringforge/internal/logger"
)

// Config holds the PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store wraps a pooled *sql.DB and implements every metadata, event-log,
// and audit port the core depends on.
type Store struct {
	db *sql.DB
}

var (
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
	identRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// validateConfig rejects connection parameters that don't look like a
// hostname/port/identifier, closing off SQL-injection-via-DSN before the
// connection string is ever assembled.
func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(cfg.Host) == nil && !hostnameRegex.MatchString(cfg.Host) {
		return fmt.Errorf("invalid database host: %s", cfg.Host)
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s", cfg.Port)
	}
	if cfg.User == "" || !identRegex.MatchString(cfg.User) {
		return fmt.Errorf("invalid database user: %s", cfg.User)
	}
	if cfg.DBName == "" || !identRegex.MatchString(cfg.DBName) {
		return fmt.Errorf("invalid database name: %s", cfg.DBName)
	}
	validModes := map[string]bool{"disable": true, "allow": true, "prefer": true, "require": true, "verify-ca": true, "verify-full": true}
	if cfg.SSLMode != "" && !validModes[cfg.SSLMode] {
		return fmt.Errorf("invalid sslmode: %s", cfg.SSLMode)
	}
	return nil
}

// Open validates cfg, opens a pooled connection, and pings it.
func Open(cfg Config) (*Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.SSLMode == "disable" {
		logger.Database().Warn().Msg("database SSL is disabled; set DB_SSLMODE=require in production")
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// FromDB wraps an already-open *sql.DB, used by tests to inject a
// DATA-DOG/go-sqlmock connection without dialing a real server.
func FromDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }
func (s *Store) DB() *sql.DB  { return s.db }

// Migrate creates every table the core needs, idempotently.
func (s *Store) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id VARCHAR(64) PRIMARY KEY,
			plan VARCHAR(32) NOT NULL DEFAULT 'free',
			email VARCHAR(255),
			password_hash VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS fleets (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(tenant_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			fleet_id VARCHAR(64) NOT NULL REFERENCES fleets(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			public_key TEXT,
			framework VARCHAR(128),
			capabilities TEXT[] NOT NULL DEFAULT '{}',
			display_name VARCHAR(255),
			tags TEXT[] NOT NULL DEFAULT '{}',
			metadata JSONB NOT NULL DEFAULT '{}',
			total_connections BIGINT NOT NULL DEFAULT 0,
			total_messages BIGINT NOT NULL DEFAULT 0,
			last_seen_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(fleet_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			fleet_id VARCHAR(64) NOT NULL DEFAULT '',
			type VARCHAR(16) NOT NULL,
			prefix VARCHAR(16) NOT NULL UNIQUE,
			hash VARCHAR(255) NOT NULL,
			expires_at TIMESTAMPTZ,
			revoked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(64) PRIMARY KEY,
			agent_id VARCHAR(64) NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			connected_at TIMESTAMPTZ NOT NULL,
			disconnected_at TIMESTAMPTZ,
			reason VARCHAR(64),
			client_addr VARCHAR(64)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id, connected_at DESC)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			fleet_id VARCHAR(64) NOT NULL REFERENCES fleets(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			dissolved BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id VARCHAR(64) NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			agent_id VARCHAR(64) NOT NULL,
			role VARCHAR(16) NOT NULL,
			PRIMARY KEY (group_id, agent_id)
		)`,
		`CREATE TABLE IF NOT EXISTS fleet_positions (
			fleet_id VARCHAR(64) PRIMARY KEY,
			next_position BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			fleet_id VARCHAR(64) NOT NULL,
			position BIGINT NOT NULL,
			origin VARCHAR(64) NOT NULL,
			kind VARCHAR(64) NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL,
			UNIQUE(fleet_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_fleet_position ON events(fleet_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_events_fleet_timestamp ON events(fleet_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			fleet_id VARCHAR(64) NOT NULL DEFAULT '',
			actor VARCHAR(64) NOT NULL,
			action VARCHAR(128) NOT NULL,
			detail TEXT,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant_time ON audit_log(tenant_id, timestamp DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w (statement: %s)", err, firstLine(stmt))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
