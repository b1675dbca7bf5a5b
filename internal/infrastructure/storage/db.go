package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nodegate/backend/internal/infrastructure/config"
	"github.com/nodegate/backend/internal/infrastructure/log"
	_ "modernc.org/sqlite"
)

// OpenDB 打开 sqlite 数据库连接，自动创建所在目录
func OpenDB(dbPath string) (*sql.DB, error) {
	// 确保目录存在
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite 单写者，避免 database is locked
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// InitDatabase 初始化表结构
func InitDatabase(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS connector_sessions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_access INTEGER NOT NULL,
		timeout_ms INTEGER NOT NULL,
		persistent INTEGER NOT NULL DEFAULT 1
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create connector_sessions table: %w", err)
	}

	createIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_connector_sessions_agent ON connector_sessions(agent_id);`

	if _, err := db.Exec(createIndexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// ProvideDB 按配置打开数据库并建表，返回清理函数
func ProvideDB(cfg *config.DatabaseConfig) (*sql.DB, func(), error) {
	logger := log.NewModuleLogger("storage", "db")

	dbPath := cfg.DatabasePath()
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := InitDatabase(db); err != nil {
		db.Close()
		return nil, nil, err
	}

	logger.Info("Database opened", "path", dbPath)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database", "error", err)
		}
	}
	return db, cleanup, nil
}
