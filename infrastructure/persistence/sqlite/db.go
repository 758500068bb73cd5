// Package sqlite is the authoritative relational store: posts, likes, views,
// users and the event outbox.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"postservice/application/ports"
	"postservice/infrastructure/persistence/schema"
	apperrors "postservice/pkg/errors"
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("database closed")

// DB owns the connection pool shared by the repositories
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending migrations.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection also keeps :memory: a single database
	db.SetMaxOpenConns(1)

	if err := Migrations().Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

type txKey struct{}

// querier is satisfied by both the pool and a transaction
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction carried by ctx, or the pool
func (d *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.db
}

// Within runs fn in a transaction that every repository and the outbox join
// when called with the context fn receives. A nested call joins the outer
// transaction. Any error from fn rolls the whole unit back.
func (d *DB) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	if d.db == nil {
		return ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewDatabaseError("commit transaction", err)
	}
	return nil
}

// Close closes the pool
func (d *DB) Close() error {
	if d.db == nil {
		return ErrClosed
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Ping checks the connection
func (d *DB) Ping(ctx context.Context) error {
	if d.db == nil {
		return ErrClosed
	}
	return d.db.PingContext(ctx)
}

// Migrations returns the schema history of the store
func Migrations() *schema.SchemaEvolution {
	evolution := schema.NewSchemaEvolution()
	_ = evolution.RegisterMigration(schema.Migration{
		FromVersion: 0,
		ToVersion:   1,
		Description: "posts, likes, views and users",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				bio TEXT NOT NULL DEFAULT '',
				profile_image_url TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS posts (
				id TEXT PRIMARY KEY,
				parent_post_id TEXT,
				repost_parent_id TEXT,
				user_id TEXT NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				media_url TEXT,
				media_width INTEGER,
				media_height INTEGER,
				deleted INTEGER NOT NULL DEFAULT 0,
				deleted_at INTEGER,
				created_at INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS likes (
				user_id TEXT NOT NULL,
				post_id TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				PRIMARY KEY(user_id, post_id)
			);`,
			`CREATE TABLE IF NOT EXISTS views (
				user_id TEXT NOT NULL,
				post_id TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				PRIMARY KEY(user_id, post_id)
			);`,
			`CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id, created_at);`,
			`CREATE INDEX IF NOT EXISTS idx_posts_parent ON posts(parent_post_id, created_at);`,
			`CREATE INDEX IF NOT EXISTS idx_posts_repost_parent ON posts(repost_parent_id);`,
			`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at);`,
			`CREATE INDEX IF NOT EXISTS idx_likes_post ON likes(post_id);`,
			`CREATE INDEX IF NOT EXISTS idx_views_post ON views(post_id);`,
		},
	})
	_ = evolution.RegisterMigration(schema.Migration{
		FromVersion: 1,
		ToVersion:   2,
		Description: "event outbox",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS outbox (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				event_id TEXT NOT NULL UNIQUE,
				event_type TEXT NOT NULL,
				partition_key TEXT NOT NULL,
				payload BLOB NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				created_at INTEGER NOT NULL,
				published_at INTEGER
			);`,
			`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(published_at, id);`,
		},
	})
	return evolution
}

var _ ports.UnitOfWork = (*DB)(nil)

func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
