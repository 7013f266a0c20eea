// Package db provides PostgreSQL persistence for the suggestion review
// workflow. The database is optional: pipelines run fully from the artifact
// directory when no DATABASE_URL is configured.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adiwibowo/perkaya/internal/types"
)

// ErrNotFound is returned when a suggestion id has no row.
var ErrNotFound = errors.New("db: suggestion not found")

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// SaveSuggestions upserts the suggestion set for a document. Existing rows
// keep their review status; only content fields are refreshed.
func (db *DB) SaveSuggestions(ctx context.Context, docID string, suggestions []types.Suggestion) error {
	batch := &pgx.Batch{}
	for _, s := range suggestions {
		batch.Queue(
			`INSERT INTO suggestions (id, doc_id, type, label, original_context, generated_content, confidence_score, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
			   original_context = EXCLUDED.original_context,
			   generated_content = EXCLUDED.generated_content,
			   confidence_score = EXCLUDED.confidence_score,
			   updated_at = NOW()`,
			s.ID, docID, string(s.Type), s.Label, s.OriginalContext,
			s.GeneratedContent, s.ConfidenceScore, string(s.Status),
		)
	}
	br := db.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range suggestions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save suggestions for %s: %w", docID, err)
		}
	}
	return nil
}

// ListSuggestions returns all suggestions for a document, optionally
// filtered by review status.
func (db *DB) ListSuggestions(ctx context.Context, docID string, status types.SuggestionStatus) ([]types.Suggestion, error) {
	query := `SELECT id, type, label, original_context, generated_content, confidence_score, status
	          FROM suggestions WHERE doc_id = $1`
	args := []any{docID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY confidence_score DESC, label ASC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions for %s: %w", docID, err)
	}
	defer rows.Close()

	var out []types.Suggestion
	for rows.Next() {
		var s types.Suggestion
		var typ, st string
		if err := rows.Scan(&s.ID, &typ, &s.Label, &s.OriginalContext, &s.GeneratedContent, &s.ConfidenceScore, &st); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		s.Type = types.ItemType(typ)
		s.Status = types.SuggestionStatus(st)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read suggestions: %w", err)
	}
	return out, nil
}

// SetStatus transitions one suggestion's review state.
func (db *DB) SetStatus(ctx context.Context, suggestionID string, status types.SuggestionStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE suggestions SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), suggestionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update suggestion %s: %w", suggestionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
