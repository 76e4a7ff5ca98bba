package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
)

// newTestDB returns a fresh in-memory database closed at test end.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}

// =========================================================================
// KEY-VALUE TESTS
// =========================================================================

func TestKV_GetSetClear(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	kv := db.KV("local")

	if _, ok, err := kv.Get(ctx, "streak"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := kv.Set(ctx, "streak", "3"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := kv.Set(ctx, "streak", "4"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	v, ok, err := kv.Get(ctx, "streak")
	if err != nil || !ok || v != "4" {
		t.Fatalf("Get() = %q, %v, %v; want \"4\", true, nil", v, ok, err)
	}

	if err := kv.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "streak"); ok {
		t.Error("key survived Clear()")
	}
}

func TestKV_NamespacesAreIsolated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := db.KV("user/a")
	b := db.KV("user/b")
	_ = a.Set(ctx, "notificationsEnabled", "true")
	_ = b.Set(ctx, "notificationsEnabled", "false")

	if err := b.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := a.Get(ctx, "notificationsEnabled"); !ok || v != "true" {
		t.Errorf("Clear() of b touched a: %q, %v", v, ok)
	}

	_ = b.Set(ctx, "notificationsEnabled", "true")
	got, err := db.NamespacesWith(ctx, "notificationsEnabled", "true")
	if err != nil {
		t.Fatalf("NamespacesWith() error = %v", err)
	}
	if len(got) != 2 || got[0] != "user/a" || got[1] != "user/b" {
		t.Errorf("NamespacesWith() = %v", got)
	}
}

// =========================================================================
// DOCUMENT TESTS
// =========================================================================

func TestDocuments_PutGetUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	docs := db.Documents()

	if _, err := docs.Get(ctx, "u1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Get() missing = %v, want ErrNotFound", err)
	}

	if err := docs.Put(ctx, "u1", &model.UserDocument{Email: "a@example.com", Bio: "hello"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	err := docs.Update(ctx, "u1", map[string]any{
		model.FieldPoints:  20,
		model.FieldFriends: []string{"u2"},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	doc, err := docs.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Points != 20 || doc.Bio != "hello" || len(doc.Friends) != 1 {
		t.Errorf("Get() = %+v", doc)
	}

	// arrays are replaced, not merged
	if err := docs.Update(ctx, "u1", map[string]any{model.FieldFriends: []string{"u3", "u4"}}); err != nil {
		t.Fatal(err)
	}
	var friends []string
	found, err := docs.GetField(ctx, "u1", model.FieldFriends, &friends)
	if err != nil || !found {
		t.Fatalf("GetField() = %v, %v", found, err)
	}
	if len(friends) != 2 || friends[0] != "u3" {
		t.Errorf("friends = %v, want [u3 u4]", friends)
	}
}

func TestDocuments_GetField(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	docs := db.Documents()
	_ = docs.Put(ctx, "u1", &model.UserDocument{Email: "a@example.com", Points: 40})

	var points int
	found, err := docs.GetField(ctx, "u1", model.FieldPoints, &points)
	if err != nil || !found || points != 40 {
		t.Errorf("GetField(points) = %d, %v, %v", points, found, err)
	}

	var email string
	if found, err := docs.GetField(ctx, "u1", model.FieldEmail, &email); err != nil || !found || email != "a@example.com" {
		t.Errorf("GetField(email) = %q, %v, %v", email, found, err)
	}

	var events []model.Event
	found, err = docs.GetField(ctx, "u1", model.FieldEvents, &events)
	if err != nil || found {
		t.Errorf("GetField(absent) = %v, %v; want false, nil", found, err)
	}

	if _, err := docs.GetField(ctx, "nobody", model.FieldPoints, &points); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetField() on missing doc = %v, want ErrNotFound", err)
	}
	if _, err := docs.GetField(ctx, "u1", "points') --", &points); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("GetField() with bad field = %v, want ErrValidation", err)
	}
}

func TestDocuments_UpdateNilRemovesField(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	docs := db.Documents()
	_ = docs.Put(ctx, "u1", &model.UserDocument{Email: "a@example.com", Bio: "hello"})

	if err := docs.Update(ctx, "u1", map[string]any{model.FieldBio: nil, model.FieldPoints: 5}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	var bio string
	if found, err := docs.GetField(ctx, "u1", model.FieldBio, &bio); err != nil || found {
		t.Errorf("GetField(bio) after nil update = %v, %v; want false, nil", found, err)
	}
	doc, err := docs.Get(ctx, "u1")
	if err != nil || doc.Points != 5 || doc.Email != "a@example.com" {
		t.Errorf("Get() = %+v, %v", doc, err)
	}
}

func TestDocuments_UpdateMissing(t *testing.T) {
	db := newTestDB(t)
	err := db.Documents().Update(context.Background(), "ghost", map[string]any{model.FieldPoints: 1})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() = %v, want ErrNotFound", err)
	}
}

func TestDocuments_SubscribeSeesUpdates(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	docs := db.Documents()
	_ = docs.Put(ctx, "u1", &model.UserDocument{Email: "a@example.com"})

	ch, err := docs.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := docs.Update(ctx, "u1", map[string]any{model.FieldPoints: 30}); err != nil {
		t.Fatal(err)
	}

	select {
	case doc := <-ch:
		if doc.Points != 30 {
			t.Errorf("notified Points = %d, want 30", doc.Points)
		}
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}
