package database

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"go.opentelemetry.io/otel"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB is the single storage handle shared by every repository.
type DB struct {
	*sql.DB
	QueryBuilder squirrel.StatementBuilderType
	Driver       string
}

type OpenOptions struct {
	DriverName   string
	DSN          string
	System       string
	MaxOpenConns int
	LogQueries   bool
}

// Open returns a database/sql handle traced with otelsql and, when asked,
// logging every statement through zerolog.
func Open(opts OpenOptions) (*sql.DB, error) {
	traced, err := otelsql.Open(opts.DriverName, opts.DSN,
		otelsql.WithDBSystem(opts.System),
		otelsql.WithDBName("todolist"),
		otelsql.WithTracerProvider(otel.GetTracerProvider()),
	)

	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.System, err)
	}

	db := traced

	if opts.LogQueries {
		logger := zerolog.New(os.Stdout).
			Level(zerolog.DebugLevel).
			With().
			Timestamp().
			Str("component", "sql").
			Logger()

		db = sqldblogger.OpenDriver(opts.DSN, traced.Driver(), zerologadapter.New(logger),
			sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
		)

		traced.Close()
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}

	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.System, err)
	}

	return db, nil
}
