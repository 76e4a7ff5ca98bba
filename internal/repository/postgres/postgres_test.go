package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
)

// newTestStore connects to WAYPOINT_TEST_DATABASE_URL and skips when it is
// unset.
func newTestStore(t *testing.T) (*DocumentStore, context.Context) {
	t.Helper()
	dsn := os.Getenv("WAYPOINT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WAYPOINT_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pool, err := NewPool(ctx, dsn, PoolOptions{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store, err := NewDocumentStore(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	go store.Listen(ctx)
	return store, ctx
}

func TestDocumentStore_RoundTrip(t *testing.T) {
	store, ctx := newTestStore(t)
	id := "test-" + xid.New().String()
	t.Cleanup(func() { _ = store.Delete(context.Background(), id) })

	require.NoError(t, store.Put(ctx, id, &model.UserDocument{Email: "a@example.com", Bio: "hi"}))
	require.NoError(t, store.Update(ctx, id, map[string]any{model.FieldPoints: 60}))

	doc, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 60, doc.Points)
	assert.Equal(t, "hi", doc.Bio)

	var points int
	found, err := store.GetField(ctx, id, model.FieldPoints, &points)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 60, points)

	var events []model.Event
	found, err = store.GetField(ctx, id, model.FieldEvents, &events)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDocumentStore_UpdateNilRemovesField(t *testing.T) {
	store, ctx := newTestStore(t)
	id := "test-" + xid.New().String()
	t.Cleanup(func() { _ = store.Delete(context.Background(), id) })

	require.NoError(t, store.Put(ctx, id, &model.UserDocument{Email: "c@example.com", Bio: "hi"}))
	require.NoError(t, store.Update(ctx, id, map[string]any{model.FieldBio: nil, model.FieldPoints: 5}))

	var bio string
	found, err := store.GetField(ctx, id, model.FieldBio, &bio)
	require.NoError(t, err)
	assert.False(t, found)

	doc, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, doc.Points)
	assert.Equal(t, "c@example.com", doc.Email)
}

func TestSplitPatch(t *testing.T) {
	set, removed := splitPatch(map[string]any{"points": 5, "bio": nil, "avatar": nil})
	assert.Equal(t, map[string]any{"points": 5}, set)
	assert.Equal(t, []string{"avatar", "bio"}, removed)

	set, removed = splitPatch(map[string]any{"points": 1})
	assert.Len(t, set, 1)
	assert.NotNil(t, removed)
	assert.Empty(t, removed)
}

func TestDocumentStore_UpdateMissing(t *testing.T) {
	store, ctx := newTestStore(t)
	err := store.Update(ctx, "missing-"+xid.New().String(), map[string]any{model.FieldPoints: 1})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDocumentStore_NotifiesSubscribers(t *testing.T) {
	store, ctx := newTestStore(t)
	id := "test-" + xid.New().String()
	t.Cleanup(func() { _ = store.Delete(context.Background(), id) })
	require.NoError(t, store.Put(ctx, id, &model.UserDocument{Email: "b@example.com"}))

	ch, err := store.Subscribe(ctx, id)
	require.NoError(t, err)

	// the listener may not have issued LISTEN yet, so keep writing
	deadline := time.After(5 * time.Second)
	for i := 1; ; i++ {
		require.NoError(t, store.Update(ctx, id, map[string]any{model.FieldStreak: i}))
		select {
		case doc := <-ch:
			assert.Positive(t, doc.Streak)
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("no notification received")
		}
	}
}

func TestFieldPattern(t *testing.T) {
	tests := []struct {
		field string
		want  bool
	}{
		{"points", true},
		{"streak_dates", true},
		{"", false},
		{"a.b", false},
		{"x'; DROP", false},
	}
	for _, tt := range tests {
		if got := fieldPattern.MatchString(tt.field); got != tt.want {
			t.Errorf("fieldPattern(%q) = %v, want %v", tt.field, got, tt.want)
		}
	}
}
