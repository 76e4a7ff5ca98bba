package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/waypoint/internal/repository"
)

var _ repository.KeyValueSpace = (*DB)(nil)

// KVStore is one namespace of the kv table.
type KVStore struct {
	conn      *sql.DB
	namespace string
}

var _ repository.KeyValueStore = (*KVStore)(nil)

// Namespace returns the key-value store for name.
func (db *DB) Namespace(name string) repository.KeyValueStore {
	return db.KV(name)
}

// KV is Namespace with the concrete return type.
func (db *DB) KV(name string) *KVStore {
	return &KVStore{conn: db.conn, namespace: name}
}

// NamespacesWith lists namespaces where key is set to value.
func (db *DB) NamespacesWith(ctx context.Context, key, value string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT namespace FROM kv WHERE key = ? AND value = ? ORDER BY namespace`,
		key, value,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing namespaces with %s=%s: %w", key, value, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("sqlite: scanning namespace: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: getting %s/%s: %w", s.namespace, key, err)
	}
	return value, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.namespace, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

// Clear removes every key in the namespace. Other namespaces are untouched.
func (s *KVStore) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("sqlite: clearing %s: %w", s.namespace, err)
	}
	return nil
}
