package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

var (
	_ repository.ChatRepository         = (*DB)(nil)
	_ repository.PublicEventRepository  = (*DB)(nil)
	_ repository.NotificationRepository = (*DB)(nil)
)

// =========================================================================
// CHAT
// =========================================================================

func (db *DB) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = xid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO chat_messages (id, chat_id, sender_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, msg.SenderID, msg.Text, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding message to %s: %w", msg.ChatID, err)
	}
	return nil
}

// ListMessages selects the newest rows and flips them so callers get
// chronological order.
func (db *DB) ListMessages(ctx context.Context, chatID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, chat_id, sender_id, text, created_at FROM (
			SELECT * FROM chat_messages WHERE chat_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages of %s: %w", chatID, err)
	}
	defer rows.Close()

	messages := []model.ChatMessage{}
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// =========================================================================
// PUBLIC EVENTS
// =========================================================================

func (db *DB) CreatePublicEvent(ctx context.Context, e *model.PublicEvent) error {
	e.ID = xid.New().String()
	e.CreatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO public_events (id, name, date, time, latitude, longitude, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, string(e.Date), e.Time, e.Latitude, e.Longitude, e.CreatedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating public event %q: %w", e.Name, err)
	}
	return nil
}

func (db *DB) ListPublicEventsFrom(ctx context.Context, day model.Day) ([]model.PublicEvent, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, date, time, latitude, longitude, created_by, created_at
		 FROM public_events WHERE date >= ? ORDER BY date, time`,
		string(day),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing public events: %w", err)
	}
	defer rows.Close()

	var out []model.PublicEvent
	for rows.Next() {
		var e model.PublicEvent
		var date string
		if err := rows.Scan(&e.ID, &e.Name, &date, &e.Time, &e.Latitude, &e.Longitude, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning public event: %w", err)
		}
		e.Date = model.Day(date)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =========================================================================
// NOTIFICATIONS
// =========================================================================

// AddNotification relies on the (user_id, kind, day) unique key so a rerun
// job does not queue the same reminder twice.
func (db *DB) AddNotification(ctx context.Context, n *model.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = xid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, kind, message, day, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, kind, day) DO NOTHING`,
		n.ID, n.UserID, n.Kind, n.Message, string(n.Day), n.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: adding notification for %s: %w", n.UserID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking notification insert: %w", err)
	}
	return rows == 1, nil
}

func (db *DB) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, kind, message, day, created_at FROM notifications
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications of %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		var day string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Message, &day, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification: %w", err)
		}
		n.Day = model.Day(day)
		out = append(out, n)
	}
	return out, rows.Err()
}
