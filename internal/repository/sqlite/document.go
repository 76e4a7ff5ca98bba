package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

// DocumentStore exposes the documents table. Change notifications are
// in-process only, so subscribers see writes made through this DB value.
type DocumentStore struct {
	db *DB
}

var _ repository.DocumentStore = (*DocumentStore)(nil)

func (db *DB) Documents() *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Get(ctx context.Context, userID string) (*model.UserDocument, error) {
	var body string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE id = ?`, userID,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("document", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting document %s: %w", userID, err)
	}

	var doc model.UserDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, apperror.Corrupt("document", err)
	}
	doc.ID = userID
	return &doc, nil
}

// GetField uses SQLite's -> operator, which yields the field as JSON text.
func (s *DocumentStore) GetField(ctx context.Context, userID, field string, dst any) (bool, error) {
	if !validField(field) {
		return false, apperror.ValidationFailed("field", fmt.Sprintf("invalid document field %q", field))
	}

	var raw sql.NullString
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT body -> ? FROM documents WHERE id = ?`, "$."+field, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperror.NotFound("document", userID)
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: reading %s of document %s: %w", field, userID, err)
	}
	if !raw.Valid || raw.String == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return false, apperror.Corrupt(field, err)
	}
	return true, nil
}

func (s *DocumentStore) Put(ctx context.Context, userID string, doc *model.UserDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("sqlite: encoding document %s: %w", userID, err)
	}
	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO documents (id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		userID, string(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: putting document %s: %w", userID, err)
	}
	s.publish(ctx, userID)
	return nil
}

// Update merges fields into the stored body with json_patch. Arrays and
// scalars replace the old value; a nil value removes the field.
func (s *DocumentStore) Update(ctx context.Context, userID string, fields map[string]any) error {
	for field := range fields {
		if !validField(field) {
			return apperror.ValidationFailed("field", fmt.Sprintf("invalid document field %q", field))
		}
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("sqlite: encoding update of %s: %w", userID, err)
	}

	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE documents SET body = json_patch(body, ?), updated_at = ? WHERE id = ?`,
		string(patch), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating document %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update of %s: %w", userID, err)
	}
	if n == 0 {
		return apperror.NotFound("document", userID)
	}
	s.publish(ctx, userID)
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting document %s: %w", userID, err)
	}
	return nil
}

func (s *DocumentStore) Subscribe(ctx context.Context, userID string) (<-chan *model.UserDocument, error) {
	return s.db.docs.Subscribe(ctx, userID), nil
}

// publish re-reads the document for subscribers. A failed read only costs
// subscribers one notification.
func (s *DocumentStore) publish(ctx context.Context, userID string) {
	if !s.db.docs.HasSubscribers(userID) {
		return
	}
	doc, err := s.Get(ctx, userID)
	if err != nil {
		return
	}
	s.db.docs.Publish(userID, doc)
}

// validField accepts plain identifiers only, since field names end up in a
// JSON path.
func validField(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}
