// Package repository declares the storage contracts the services depend on,
// plus the typed progress/event stores built on top of them.
//
// Concrete backends live in sub-packages: sqlite for the local key-value
// store, accounts, chats and the default document store; postgres for a
// shared document store with cross-instance change notifications.
package repository

import (
	"context"

	"github.com/sakif/waypoint/internal/model"
)

// Well-known key-value keys. Structured values are JSON-encoded.
const (
	KeyStreak      = "streak"
	KeyLastDate    = "lastDate"
	KeyTotalPoints = "totalPoints"
	KeyStreakDates = "streakDates"
	KeyFreezes     = "streakFreezes"
	KeyEvents      = "events"
	KeyAvatar      = "avatar"
)

// KeyValueStore is a flat string map, the local store used when signed out.
type KeyValueStore interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Clear removes every key.
	Clear(ctx context.Context) error
}

// KeyValueSpace hands out isolated key-value stores by namespace.
type KeyValueSpace interface {
	Namespace(name string) KeyValueStore
	// NamespacesWith lists namespaces having key set to value.
	NamespacesWith(ctx context.Context, key, value string) ([]string, error)
}

// DocumentStore holds one document per user. It enforces no schema; callers
// validate what they read.
type DocumentStore interface {
	// Get reads the whole document. Returns apperror.ErrNotFound if missing.
	Get(ctx context.Context, userID string) (*model.UserDocument, error)
	// GetField decodes a single field into dst. found is false when the
	// field is absent. Returns apperror.ErrNotFound if the document is missing.
	GetField(ctx context.Context, userID, field string, dst any) (found bool, err error)
	// Put creates or replaces the document.
	Put(ctx context.Context, userID string, doc *model.UserDocument) error
	// Update overwrites only the given fields. Returns apperror.ErrNotFound
	// if the document is missing.
	Update(ctx context.Context, userID string, fields map[string]any) error
	Delete(ctx context.Context, userID string) error
	// Subscribe streams the document after every change until ctx is done.
	Subscribe(ctx context.Context, userID string) (<-chan *model.UserDocument, error)
}

type UserRepository interface {
	// Create inserts an email account. Returns apperror.ErrConflict when the
	// email or username is taken.
	Create(ctx context.Context, user *model.User) error
	// Upsert inserts or refreshes a GitHub account keyed by GitHubID.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateUsername(ctx context.Context, id, username string) error
}

type ChatRepository interface {
	AddMessage(ctx context.Context, msg *model.ChatMessage) error
	// ListMessages returns the newest limit messages, oldest first.
	ListMessages(ctx context.Context, chatID string, limit int) ([]model.ChatMessage, error)
}

type PublicEventRepository interface {
	CreatePublicEvent(ctx context.Context, e *model.PublicEvent) error
	// ListPublicEventsFrom returns events dated on or after day.
	ListPublicEventsFrom(ctx context.Context, day model.Day) ([]model.PublicEvent, error)
}

type NotificationRepository interface {
	// AddNotification stores n unless one of the same kind already exists
	// for that user and day. Reports whether it was stored.
	AddNotification(ctx context.Context, n *model.Notification) (bool, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
}
