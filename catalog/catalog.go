// Package catalog records which tile rasters have been cropped to disk so a
// restarted server can reuse them instead of cropping the DEM again.
package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/tiles"
	_ "modernc.org/sqlite"
)

const (
	// ErrTypeNotFound is the error type returned when a tile is not
	// recorded in the catalog.
	ErrTypeNotFound = "catalog-not-found"
)

// Entry is a cropped tile raster recorded in the catalog.
type Entry struct {
	ID          tiles.ID  `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Bytes       int64     `json:"bytes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Catalog is a SQLite backed index of cropped tile rasters. It is safe for
// concurrent use.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return nil, errors.New("empty catalog path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New("creating catalog directory failed").
			WithTag("path", path).
			Wrap(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New("opening catalog failed").
			WithTag("path", path).
			Wrap(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Catalog{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	} {
		if _, err := db.Exec(p); err != nil {
			return errors.New("setting catalog pragma failed").
				WithTag("pragma", p).
				Wrap(err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS tiles (
		name TEXT PRIMARY KEY,
		col INTEGER NOT NULL,
		row INTEGER NOT NULL,
		path TEXT NOT NULL,
		bytes INTEGER NOT NULL,
		generated_at INTEGER NOT NULL
	);`)
	if err != nil {
		return errors.New("creating catalog schema failed").Wrap(err)
	}
	return nil
}

// Record inserts or replaces the entry of a tile.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.Name == "" {
		e.Name = e.ID.Name()
	}

	_, err := c.db.ExecContext(ctx, `INSERT INTO tiles (name, col, row, path, bytes, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			bytes = excluded.bytes,
			generated_at = excluded.generated_at;`,
		e.Name, e.ID.Col, e.ID.Row, e.Path, e.Bytes, e.GeneratedAt.UnixMilli(),
	)
	if err != nil {
		return errors.New("recording tile failed").
			WithTag("tile", e.Name).
			Wrap(err)
	}
	return nil
}

// Lookup returns the entry of a tile.
func (c *Catalog) Lookup(ctx context.Context, id tiles.ID) (Entry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT name, col, row, path, bytes, generated_at
		FROM tiles WHERE name = ?;`, id.Name())

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, errors.New("tile not in catalog").
			WithType(ErrTypeNotFound).
			WithTag("tile", id.Name())
	}
	if err != nil {
		return Entry{}, errors.New("looking up tile failed").
			WithTag("tile", id.Name()).
			Wrap(err)
	}
	return e, nil
}

// List returns every entry in row-major order.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, col, row, path, bytes, generated_at
		FROM tiles ORDER BY row, col;`)
	if err != nil {
		return nil, errors.New("listing tiles failed").Wrap(err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.New("scanning tile failed").Wrap(err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.New("listing tiles failed").Wrap(err)
	}
	return entries, nil
}

// Delete removes the entry of a tile. Deleting an absent tile is a no-op.
func (c *Catalog) Delete(ctx context.Context, id tiles.ID) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM tiles WHERE name = ?;`, id.Name()); err != nil {
		return errors.New("deleting tile failed").
			WithTag("tile", id.Name()).
			Wrap(err)
	}
	return nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var generatedAt int64

	if err := s.Scan(&e.Name, &e.ID.Col, &e.ID.Row, &e.Path, &e.Bytes, &generatedAt); err != nil {
		return Entry{}, err
	}

	e.GeneratedAt = time.UnixMilli(generatedAt)
	return e, nil
}
