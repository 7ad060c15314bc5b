// Package db provides the Postgres connection helper, schema migration and
// the published-items queries used by the journal and the status API.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// ErrNoDSN is returned by Connect when no DSN is configured.
var ErrNoDSN = errors.New("database dsn is empty")

// PublishedItem is one row of the published_items table.
type PublishedItem struct {
	ItemID      string    `json:"id"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
}

// Connect opens a Postgres pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return database, nil
}

// Migrate brings the schema up to date.
func Migrate(database *sql.DB) error { return RunMigrations(database) }

// InsertPublished records one published item.
func InsertPublished(ctx context.Context, dbx *sql.DB, itemID, text string, at time.Time) error {
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO published_items(item_id, text, published_at) VALUES($1,$2,$3)`,
		itemID, text, at)
	return err
}

// RecentPublished returns up to limit items, newest first.
func RecentPublished(ctx context.Context, dbx *sql.DB, limit int) ([]PublishedItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := dbx.QueryContext(ctx,
		`SELECT item_id, text, published_at FROM published_items ORDER BY published_at DESC, id DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []PublishedItem{}
	for rows.Next() {
		var it PublishedItem
		if err := rows.Scan(&it.ItemID, &it.Text, &it.PublishedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
