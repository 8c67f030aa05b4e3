package postgres

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	DSN          string        `split_words:"true" required:"true"`
	Timeout      time.Duration `split_words:"true" default:"5s"`
	MaxOpenConns int           `split_words:"true" default:"10"`
}

// NewDB opens a lazily connected bun handle; no connection is made until the first query.
func NewDB(cfg Config) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func MustNew(cfg Config) *bun.DB {
	db, err := NewDB(cfg)
	if err != nil {
		panic(err)
	}
	return db
}
