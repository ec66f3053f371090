package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store persists activity entries in PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// StoreConfig contains database configuration
type StoreConfig struct {
	DatabaseURL     string        `yaml:"url" mapstructure:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

const schema = `
CREATE TABLE IF NOT EXISTS activity_log (
	id        UUID PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	type      TEXT NOT NULL,
	service   TEXT NOT NULL,
	message   TEXT NOT NULL,
	details   JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS activity_log_timestamp_idx ON activity_log (timestamp DESC);`

// NewStore connects to the database and makes sure the table exists.
func NewStore(config *StoreConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{db: db, logger: logger}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize activity store: %w", err)
	}

	logger.Info("Activity store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// NewStoreFromDB wraps an existing connection.
func NewStoreFromDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return s.EnsureSchema(ctx)
}

// EnsureSchema creates the activity table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create activity_log table: %w", err)
	}
	return nil
}

// Record implements Recorder.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	return s.Insert(ctx, &entry)
}

// Insert adds one entry.
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO activity_log (id, timestamp, type, service, message, details)
		VALUES (:id, :timestamp, :type, :service, :message, :details)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		s.logger.Error("Failed to insert activity entry",
			zap.Error(err),
			zap.String("entry_id", entry.ID),
			zap.String("type", string(entry.Type)))
		return fmt.Errorf("failed to insert activity entry: %w", err)
	}

	s.logger.Debug("Activity entry stored",
		zap.String("entry_id", entry.ID),
		zap.String("type", string(entry.Type)))
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultMaxEntries
	}

	query := `
		SELECT id, timestamp, type, service, message, details
		FROM activity_log
		ORDER BY timestamp DESC
		LIMIT $1`

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the given age and reports how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM activity_log WHERE timestamp < $1`,
		time.Now().Add(-olderThan).UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune activity log: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("Pruned activity log", zap.Int64("deleted", n))
	}
	return n, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides the password in a connection URL.
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	scheme := strings.Index(userPart, "://")
	colon := strings.LastIndex(userPart, ":")
	if colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
