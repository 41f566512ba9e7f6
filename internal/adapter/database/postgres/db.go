package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"todolist/internal/adapter/database"
	"todolist/internal/adapter/database/migrations"
	"todolist/pkg/config"
)

func NewDB(cfg config.DatabaseConfig) (*database.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	if err := RunMigrations(cfg.URL); err != nil {
		return nil, err
	}

	sqlDB, err := database.Open(database.OpenOptions{
		DriverName:   "pgx",
		DSN:          cfg.URL,
		System:       "postgresql",
		MaxOpenConns: cfg.MaxOpenConns,
		LogQueries:   cfg.LogQueries,
	})

	if err != nil {
		return nil, err
	}

	return &database.DB{
		DB:           sqlDB,
		QueryBuilder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		Driver:       database.DriverPostgres,
	}, nil
}

// RunMigrations uses its own handle: the postgres migration driver pins a
// connection for as long as it lives.
func RunMigrations(url string) error {
	sqlDB, err := sql.Open("pgx", url)

	if err != nil {
		return err
	}

	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})

	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, "postgres")

	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)

	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
