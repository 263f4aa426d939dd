package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"courtsim/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database entry named dbType in cfg.Databases.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the hearing tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS hearings (
				id TEXT PRIMARY KEY,
				scenario_title TEXT NOT NULL,
				provider TEXT NOT NULL,
				model TEXT NOT NULL,
				api_key TEXT NOT NULL,
				autopilot INTEGER NOT NULL DEFAULT 0,
				coaching INTEGER NOT NULL DEFAULT 0,
				plaintiff_coached INTEGER NOT NULL DEFAULT 0,
				defendant_coached INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				hearing_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(hearing_id) REFERENCES hearings(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS hearing_tokens (
				token TEXT PRIMARY KEY,
				hearing_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(hearing_id) REFERENCES hearings(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_hearing ON messages(hearing_id)`,
			`CREATE INDEX IF NOT EXISTS idx_hearing_tokens_hearing ON hearing_tokens(hearing_id)`,
			`CREATE INDEX IF NOT EXISTS idx_hearings_updated_at ON hearings(updated_at)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS hearings (
				id CHAR(36) NOT NULL,
				scenario_title VARCHAR(255) NOT NULL,
				provider VARCHAR(50) NOT NULL,
				model VARCHAR(100) NOT NULL,
				api_key TEXT NOT NULL,
				autopilot TINYINT(1) NOT NULL DEFAULT 0,
				coaching TINYINT(1) NOT NULL DEFAULT 0,
				plaintiff_coached TINYINT(1) NOT NULL DEFAULT 0,
				defendant_coached TINYINT(1) NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_hearings_updated_at (updated_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				hearing_id CHAR(36) NOT NULL,
				role VARCHAR(20) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_messages_hearing (hearing_id),
				CONSTRAINT fk_messages_hearing FOREIGN KEY (hearing_id) REFERENCES hearings(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS hearing_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				hearing_id CHAR(36) NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				INDEX idx_hearing_tokens_hearing (hearing_id),
				CONSTRAINT fk_hearing_tokens_hearing FOREIGN KEY (hearing_id) REFERENCES hearings(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
