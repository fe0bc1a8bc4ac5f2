package contentstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const defaultContentLimit = 20

// SaveContent inserts pkg, assigning an ID and creation time when missing.
func (s *Store) SaveContent(ctx context.Context, pkg Package) (Package, error) {
	if strings.TrimSpace(pkg.Topic) == "" || strings.TrimSpace(pkg.Kind) == "" {
		return Package{}, persistenceError("save content", errors.New("topic and kind are required"))
	}
	if pkg.ID == "" {
		pkg.ID = uuid.NewString()
	}
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now().UTC()
	}
	body := pkg.Body
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	if !json.Valid(body) {
		return Package{}, persistenceError("save content", errors.New("body is not valid JSON"))
	}
	pkg.Body = body

	_, err := s.execWithRetry(ctx,
		`INSERT INTO content_packages (
            id, run_id, topic, kind, title, request_id, body_json, word_count, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pkg.ID,
		pkg.RunID,
		pkg.Topic,
		pkg.Kind,
		nullableString(pkg.Title),
		nullableString(pkg.RequestID),
		string(body),
		pkg.WordCount,
		formatTime(pkg.CreatedAt),
	)
	if err != nil {
		return Package{}, persistenceError("save content", err)
	}
	return pkg, nil
}

// GetContent returns the package with id.
func (s *Store) GetContent(ctx context.Context, id string) (*Package, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, run_id, topic, kind, title, request_id, body_json, word_count, created_at
         FROM content_packages WHERE id = ?`, id)
	pkg, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, persistenceError("get content", err)
	}
	return &pkg, nil
}

// RecentContent lists the newest packages, optionally filtered by kind.
func (s *Store) RecentContent(ctx context.Context, kind string, limit int) ([]Package, error) {
	if limit <= 0 {
		limit = defaultContentLimit
	}
	query := `SELECT id, run_id, topic, kind, title, request_id, body_json, word_count, created_at
              FROM content_packages`
	args := make([]any, 0, 2)
	if kind = strings.TrimSpace(kind); kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, persistenceError("list content", err)
	}
	defer rows.Close()

	var packages []Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, persistenceError("scan content", err)
		}
		packages = append(packages, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list content", err)
	}
	return packages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPackage(row scanner) (Package, error) {
	var (
		pkg       Package
		title     sql.NullString
		requestID sql.NullString
		body      string
		createdAt sql.NullString
	)
	if err := row.Scan(&pkg.ID, &pkg.RunID, &pkg.Topic, &pkg.Kind, &title, &requestID, &body, &pkg.WordCount, &createdAt); err != nil {
		return Package{}, err
	}
	pkg.Title = title.String
	pkg.RequestID = requestID.String
	pkg.Body = json.RawMessage(body)
	pkg.CreatedAt = parseTime(createdAt)
	return pkg, nil
}
