package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"todolist/internal/adapter/database"
	"todolist/internal/adapter/database/migrations"
	"todolist/pkg/config"
)

const MemoryPath = ":memory:"

func NewDB(cfg config.DatabaseConfig) (*database.DB, error) {
	path := cfg.Path

	if path == "" {
		path = "todos.db"
	}

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	maxOpenConns := cfg.MaxOpenConns

	// an in-memory database lives and dies with its connection
	if path == MemoryPath || maxOpenConns <= 0 {
		maxOpenConns = 1
	}

	sqlDB, err := database.Open(database.OpenOptions{
		DriverName:   "sqlite3",
		DSN:          DSN(path),
		System:       "sqlite",
		MaxOpenConns: maxOpenConns,
		LogQueries:   cfg.LogQueries,
	})

	if err != nil {
		return nil, err
	}

	if err := RunMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &database.DB{
		DB:           sqlDB,
		QueryBuilder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		Driver:       database.DriverSQLite,
	}, nil
}

func DSN(path string) string {
	if path == MemoryPath {
		return path
	}

	return path + "?_journal_mode=WAL&_busy_timeout=5000"
}

func RunMigrations(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, "sqlite")

	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})

	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)

	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
