package storage

import (
	"context"
	"database/sql"
	"embed"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = domain.ErrNotFound

// Open opens the pgx stdlib pool and pings it.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "db ping")
	}
	return db, nil
}

// Migrate applies the embedded migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(ErrNotFound, what)
	}
	return err
}
