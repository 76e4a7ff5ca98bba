// Package postgres implements repository.DocumentStore on PostgreSQL.
//
// Documents live in a JSONB column. A trigger raises NOTIFY on every write
// and one listening connection fans changes out to subscribers, so every
// server instance sharing the database sees remote writes.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/pubsub"
	"github.com/sakif/waypoint/internal/repository"
)

// channel is the NOTIFY channel the documents trigger publishes to.
const channel = "waypoint_documents"

// PoolOptions tune the connection pool.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

// NewPool parses dsn, applies opts and checks the database is reachable.
func NewPool(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: database unreachable: %w", err)
	}
	return pool, nil
}

// DocumentStore keeps user documents in the documents table.
type DocumentStore struct {
	pool   *pgxpool.Pool
	hub    *pubsub.Hub[*model.UserDocument]
	logger *slog.Logger
}

var _ repository.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore migrates the schema. Call Listen to start delivering
// change notifications.
func NewDocumentStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*DocumentStore, error) {
	s := &DocumentStore{
		pool:   pool,
		hub:    pubsub.NewHub[*model.UserDocument](8),
		logger: logger,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return s, nil
}

func (s *DocumentStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			body       JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE OR REPLACE FUNCTION waypoint_notify_document() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('`+channel+`', NEW.id);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS documents_notify ON documents;
		CREATE TRIGGER documents_notify
			AFTER INSERT OR UPDATE ON documents
			FOR EACH ROW EXECUTE FUNCTION waypoint_notify_document();
	`)
	return err
}

func (s *DocumentStore) Get(ctx context.Context, userID string) (*model.UserDocument, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM documents WHERE id = $1`, userID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("document", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting document %s: %w", userID, err)
	}

	var doc model.UserDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperror.Corrupt("document", err)
	}
	doc.ID = userID
	return &doc, nil
}

func (s *DocumentStore) GetField(ctx context.Context, userID, field string, dst any) (bool, error) {
	if !fieldPattern.MatchString(field) {
		return false, apperror.ValidationFailed("field", fmt.Sprintf("invalid document field %q", field))
	}

	var raw *string
	err := s.pool.QueryRow(ctx,
		`SELECT (body -> $2)::text FROM documents WHERE id = $1`, userID, field,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperror.NotFound("document", userID)
	}
	if err != nil {
		return false, fmt.Errorf("postgres: reading %s of document %s: %w", field, userID, err)
	}
	if raw == nil || *raw == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(*raw), dst); err != nil {
		return false, apperror.Corrupt(field, err)
	}
	return true, nil
}

func (s *DocumentStore) Put(ctx context.Context, userID string, doc *model.UserDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("postgres: encoding document %s: %w", userID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, body, updated_at) VALUES ($1, $2::jsonb, NOW())
		 ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
		userID, string(body),
	)
	if err != nil {
		return fmt.Errorf("postgres: putting document %s: %w", userID, err)
	}
	return nil
}

// Update merges top-level fields with the jsonb || operator. Arrays and
// scalars replace the old value; a nil value removes the field.
func (s *DocumentStore) Update(ctx context.Context, userID string, fields map[string]any) error {
	for field := range fields {
		if !fieldPattern.MatchString(field) {
			return apperror.ValidationFailed("field", fmt.Sprintf("invalid document field %q", field))
		}
	}
	set, removed := splitPatch(fields)
	patch, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("postgres: encoding update of %s: %w", userID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET body = (body || $2::jsonb) - $3::text[], updated_at = NOW() WHERE id = $1`,
		userID, string(patch), removed,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating document %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("document", userID)
	}
	return nil
}

// splitPatch separates the fields to set from the fields to remove.
func splitPatch(fields map[string]any) (set map[string]any, removed []string) {
	set = make(map[string]any, len(fields))
	removed = []string{}
	for k, v := range fields {
		if v == nil {
			removed = append(removed, k)
			continue
		}
		set[k] = v
	}
	slices.Sort(removed)
	return set, removed
}

func (s *DocumentStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("postgres: deleting document %s: %w", userID, err)
	}
	return nil
}

func (s *DocumentStore) Subscribe(ctx context.Context, userID string) (<-chan *model.UserDocument, error) {
	return s.hub.Subscribe(ctx, userID), nil
}

// Listen holds one pool connection in LISTEN mode until ctx is cancelled,
// reconnecting after errors.
func (s *DocumentStore) Listen(ctx context.Context) {
	for {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("document listener stopped, retrying",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *DocumentStore) listen(ctx context.Context) error {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	// A connection in LISTEN mode must not go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listening on %s: %w", channel, err)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		userID := n.Payload
		if !s.hub.HasSubscribers(userID) {
			continue
		}
		doc, err := s.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("reloading changed document",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.hub.Publish(userID, doc)
	}
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
