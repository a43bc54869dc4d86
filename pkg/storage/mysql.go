package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// MySQLStore keeps values in a name/value options table, the layout form
// plugins on a CMS database already use.
type MySQLStore struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

// NewMySQLStore opens the database and creates the options table if needed
func NewMySQLStore(ctx context.Context, cfg config.MySQLConfig, logger *zap.Logger) (*MySQLStore, error) {
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid mysql table name %q", cfg.Table)
	}

	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	dsn.ParseTime = true

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	s := &MySQLStore{db: db, table: cfg.Table, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("mysql storage connected", zap.String("table", cfg.Table), zap.String("database", dsn.DBName))
	return s, nil
}

func (s *MySQLStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"option_name VARCHAR(191) NOT NULL PRIMARY KEY, "+
		"option_value LONGBLOB NOT NULL, "+
		"updated_at DATETIME NOT NULL"+
		") DEFAULT CHARSET=utf8mb4", s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Get implements Store.Get
func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf("SELECT option_value FROM `%s` WHERE option_name = ?", s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// Set implements Store.Set
func (s *MySQLStore) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf("INSERT INTO `%s` (option_name, option_value, updated_at) VALUES (?, ?, ?) "+
		"ON DUPLICATE KEY UPDATE option_value = VALUES(option_value), updated_at = VALUES(updated_at)", s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.Delete
func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM `%s` WHERE option_name = ?", s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close implements Store.Close
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
