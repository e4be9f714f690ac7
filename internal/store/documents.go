package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskcal/internal/models"
)

// InsertDocuments stores document chunks with their embeddings in one transaction.
func (s *Store) InsertDocuments(ctx context.Context, docs []*models.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents(id, source, content, embedding, created_at) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range docs {
		d.ID = newID()
		d.CreatedAt = now
		emb, err := json.Marshal(d.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Source, d.Content, string(emb), formatTime(now)); err != nil {
			return fmt.Errorf("failed to insert document chunk: %w", err)
		}
	}
	return tx.Commit()
}

// ListDocuments returns every stored chunk with its embedding.
func (s *Store) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, content, embedding, created_at FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		var d models.Document
		var emb, created string
		if err := rows.Scan(&d.ID, &d.Source, &d.Content, &emb, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(emb), &d.Embedding); err != nil {
			return nil, fmt.Errorf("document %s: bad embedding: %w", d.ID, err)
		}
		d.CreatedAt = parseTime(created)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// DeleteDocumentsBySource removes every chunk ingested from source.
func (s *Store) DeleteDocumentsBySource(ctx context.Context, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertEstimate records an estimate in the history.
func (s *Store) InsertEstimate(ctx context.Context, e *models.Estimate) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	sources, err := json.Marshal(nonNil(e.Sources))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO estimates(id, user_id, request, duration, minutes, raw, attempts, sources, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, e.Request, e.Duration, e.Minutes, e.Raw, e.Attempts, string(sources), formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert estimate: %w", err)
	}
	return nil
}

// ListEstimates returns the most recent estimates of userID, newest first.
func (s *Store) ListEstimates(ctx context.Context, userID string, limit int) ([]*models.Estimate, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, request, duration, minutes, raw, attempts, sources, created_at
		 FROM estimates WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Estimate
	for rows.Next() {
		var e models.Estimate
		var sources, created string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Request, &e.Duration, &e.Minutes, &e.Raw, &e.Attempts, &sources, &created); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(sources), &e.Sources)
		e.CreatedAt = parseTime(created)
		out = append(out, &e)
	}
	return out, rows.Err()
}
