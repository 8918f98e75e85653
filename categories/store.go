// Package categories manages the gallery's category taxonomy and the media
// inventory referencing it.
//
// Category reads go through an in-memory cache; every write invalidates it.
// The cache holds the full list, which stays small (tens of rows).
package categories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/galfo/dbopen"
	"github.com/hazyhaar/galfo/horosafe"
	"github.com/hazyhaar/galfo/idgen"
)

var (
	// ErrNotFound is returned when a category or media item does not exist.
	ErrNotFound = errors.New("categories: not found")
	// ErrDuplicate is returned when a category name is already taken.
	ErrDuplicate = errors.New("categories: duplicate name")
)

// Category is one entry of the gallery taxonomy.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// MediaItem is one inventory row: a protected media the gallery can show.
// Identity is the back-office media path; Kind selects the render element.
type MediaItem struct {
	ID         string `json:"id"`
	Identity   string `json:"identity"`
	Kind       string `json:"kind"` // image | video
	CategoryID string `json:"category_id,omitempty"`
	Title      string `json:"title"`
	CreatedAt  int64  `json:"created_at"`
}

// Schema contains the DDL for the taxonomy and inventory tables.
const Schema = `
CREATE TABLE IF NOT EXISTS categories (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS media_items (
    id          TEXT PRIMARY KEY,
    identity    TEXT NOT NULL UNIQUE,
    kind        TEXT NOT NULL CHECK (kind IN ('image', 'video')),
    category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
    title       TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_media_category ON media_items(category_id);
`

// Store provides category and media inventory CRUD over SQLite.
type Store struct {
	db    *sql.DB
	newID idgen.Generator

	mu    sync.Mutex
	cache []Category // nil = invalidated
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets a custom ID generator for category and media IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates a Store and applies the schema.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("categories: DB is required")
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("categories schema: %w", err)
	}
	s := &Store{db: db, newID: idgen.Default}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// List returns all categories ordered by name. Served from cache when warm.
func (s *Store) List(ctx context.Context) ([]Category, error) {
	s.mu.Lock()
	if s.cache != nil {
		out := make([]Category, len(s.cache))
		copy(out, s.cache)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("categories list: %w", err)
	}
	defer rows.Close()

	cats := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("categories scan: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache = cats
	s.mu.Unlock()

	out := make([]Category, len(cats))
	copy(out, cats)
	return out, nil
}

// Create inserts a category and returns it. Names are trimmed and must be
// unique; the list cache is invalidated.
func (s *Store) Create(ctx context.Context, name string) (*Category, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	c := &Category{
		ID:        "cat_" + s.newID(),
		Name:      name,
		CreatedAt: time.Now().Unix(),
	}
	_, err = dbopen.Exec(ctx, s.db,
		`INSERT INTO categories (id, name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Name, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("categories create: %w", err)
	}
	s.invalidate()
	return c, nil
}

// Rename changes a category's name. The list cache is invalidated.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}

	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE categories SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("categories rename: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.invalidate()
	return nil
}

// Delete removes a category. Media items referencing it fall back to no
// category (FK ON DELETE SET NULL). The list cache is invalidated.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("categories delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.invalidate()
	return nil
}

// AddMedia inserts a media inventory row. Identity must be a valid back-office
// media path; kind must be image or video.
func (s *Store) AddMedia(ctx context.Context, identity, kind, categoryID, title string) (*MediaItem, error) {
	if err := horosafe.ValidateMediaPath(identity); err != nil {
		return nil, fmt.Errorf("categories add media: %w", err)
	}
	if kind != "image" && kind != "video" {
		return nil, fmt.Errorf("categories add media: invalid kind %q", kind)
	}

	m := &MediaItem{
		ID:         "med_" + s.newID(),
		Identity:   identity,
		Kind:       kind,
		CategoryID: categoryID,
		Title:      strings.TrimSpace(title),
		CreatedAt:  time.Now().Unix(),
	}
	var catID interface{}
	if m.CategoryID != "" {
		catID = m.CategoryID
	}
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO media_items (id, identity, kind, category_id, title, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Identity, m.Kind, catID, m.Title, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("categories add media: %w", err)
	}
	return m, nil
}

// ListMedia returns inventory rows, optionally filtered by category ID.
func (s *Store) ListMedia(ctx context.Context, categoryID string) ([]MediaItem, error) {
	q := `SELECT id, identity, kind, category_id, title, created_at FROM media_items`
	args := []interface{}{}
	if categoryID != "" {
		q += ` WHERE category_id = ?`
		args = append(args, categoryID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("categories list media: %w", err)
	}
	defer rows.Close()

	items := []MediaItem{}
	for rows.Next() {
		var m MediaItem
		var catID sql.NullString
		if err := rows.Scan(&m.ID, &m.Identity, &m.Kind, &catID, &m.Title, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("categories scan media: %w", err)
		}
		if catID.Valid {
			m.CategoryID = catID.String
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// DeleteMedia removes an inventory row.
func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM media_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("categories delete media: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("categories: name is required")
	}
	if len(name) > 80 {
		return "", fmt.Errorf("categories: name too long")
	}
	return name, nil
}

// modernc.org/sqlite reports constraint failures as plain errors; match on
// the message since the driver does not export typed constraint errors.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
