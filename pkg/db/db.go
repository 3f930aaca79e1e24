// Package db provides the persistence layer used by the application. It wraps
// a SQLite database that remembers which covers were saved and caches OAuth
// tokens of services using the client credentials flow. Callers are expected
// to open a single DB instance using New and reuse it for all operations.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

// DB wraps a sql.DB connection and exposes helper methods for the
// application's persistence layer.
type DB struct {
	*sql.DB
}

// New opens the SQLite database located at path. If the file does not
// exist it is created along with the required schema.
func New(path string) (*DB, error) {
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		d.SetMaxOpenConns(1)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tokens (service TEXT PRIMARY KEY, token TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS downloads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			service TEXT NOT NULL,
			artist_name TEXT,
			album_name TEXT,
			image_url TEXT NOT NULL,
			width INTEGER,
			height INTEGER,
			path TEXT NOT NULL,
			saved_at TIMESTAMP NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_saved ON downloads(saved_at)`,
	}
	for _, s := range stmts {
		if _, err := d.Exec(s); err != nil {
			d.Close()
			return nil, fmt.Errorf("init db: %w", err)
		}
	}
	return &DB{d}, nil
}

// SaveToken persists the OAuth token for service. An existing token is
// replaced.
func (db *DB) SaveToken(ctx context.Context, service string, token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO tokens(service, token) VALUES(?, ?) ON CONFLICT(service) DO UPDATE SET token=excluded.token`, service, string(b))
	return err
}

// GetToken retrieves the OAuth token stored for service. sql.ErrNoRows is
// returned when none was saved.
func (db *DB) GetToken(ctx context.Context, service string) (*oauth2.Token, error) {
	var data string
	if err := db.QueryRowContext(ctx, `SELECT token FROM tokens WHERE service=?`, service).Scan(&data); err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Download is one saved cover.
type Download struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Service    string    `json:"service"`
	ArtistName string    `json:"artist_name"`
	AlbumName  string    `json:"album_name"`
	ImageURL   string    `json:"image_url"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Path       string    `json:"path"`
	SavedAt    time.Time `json:"saved_at"`
}

// AddDownload records a saved cover and returns its row id. A zero SavedAt
// is replaced by the current time.
func (db *DB) AddDownload(ctx context.Context, d Download) (int64, error) {
	if d.SavedAt.IsZero() {
		d.SavedAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO downloads(session_id, service, artist_name, album_name, image_url, width, height, path, saved_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.Service, d.ArtistName, d.AlbumName, d.ImageURL, d.Width, d.Height, d.Path, d.SavedAt)
	if err != nil {
		return 0, fmt.Errorf("add download: %w", err)
	}
	return res.LastInsertId()
}

// ListDownloads returns the most recent downloads first. A limit of zero or
// less returns every row.
func (db *DB) ListDownloads(ctx context.Context, limit int) ([]Download, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, session_id, service, artist_name, album_name, image_url, width, height, path, saved_at FROM downloads ORDER BY saved_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Download
	for rows.Next() {
		var d Download
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Service, &d.ArtistName, &d.AlbumName, &d.ImageURL, &d.Width, &d.Height, &d.Path, &d.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ServiceCount aggregates downloads per service.
type ServiceCount struct {
	Service string `json:"service"`
	Count   int    `json:"count"`
}

// TopServicesSince returns how many covers each service supplied since the
// given time, most productive first.
func (db *DB) TopServicesSince(ctx context.Context, since time.Time) ([]ServiceCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT service, COUNT(*) as c FROM downloads WHERE saved_at >= ? GROUP BY service ORDER BY c DESC, service`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ServiceCount
	for rows.Next() {
		var sc ServiceCount
		if err := rows.Scan(&sc.Service, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
