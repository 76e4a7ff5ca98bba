package service

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository/sqlite"
)

// createTestAccount inserts an account and its document.
func createTestAccount(t *testing.T, db *sqlite.DB, username string) *model.User {
	t.Helper()
	ctx := context.Background()
	user := &model.User{Email: username + "@example.com", Username: username}
	if err := db.Create(ctx, user); err != nil {
		t.Fatalf("Create(%s) error = %v", username, err)
	}
	doc := &model.UserDocument{Email: user.Email, Username: username}
	if err := db.Documents().Put(ctx, user.ID, doc); err != nil {
		t.Fatalf("Put(%s) error = %v", username, err)
	}
	return user
}

// =========================================================================
// SETTINGS
// =========================================================================

func TestSettings_DefaultsAndUpdate(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettingsService(db)
	ctx := context.Background()

	got, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	for _, key := range model.SettingKeys {
		if on, ok := got[key]; !ok || on {
			t.Errorf("default %s = %v, %v; want false, present", key, on, ok)
		}
	}

	got, err = svc.Update(ctx, "u1", model.Settings{model.SettingDarkMode: true})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !got[model.SettingDarkMode] || got[model.SettingPrivateProfile] {
		t.Errorf("after Update() = %v", got)
	}

	other, _ := svc.Get(ctx, "u2")
	if other[model.SettingDarkMode] {
		t.Error("settings leaked between users")
	}
}

func TestSettings_UnknownKeyRejected(t *testing.T) {
	svc := NewSettingsService(newTestDB(t))
	ctx := context.Background()

	_, err := svc.Update(ctx, "u1", model.Settings{model.SettingDarkMode: true, "telepathy": true})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation", err)
	}
	got, _ := svc.Get(ctx, "u1")
	if got[model.SettingDarkMode] {
		t.Error("valid key written alongside a rejected one")
	}
}

func TestSettings_NotifiableUsers(t *testing.T) {
	svc := NewSettingsService(newTestDB(t))
	ctx := context.Background()

	_, _ = svc.Update(ctx, "a", model.Settings{model.SettingNotificationsEnabled: true})
	_, _ = svc.Update(ctx, "b", model.Settings{model.SettingNotificationsEnabled: false})
	_, _ = svc.Update(ctx, "c", model.Settings{model.SettingNotificationsEnabled: true})

	users, err := svc.NotifiableUsers(ctx)
	if err != nil {
		t.Fatalf("NotifiableUsers() error = %v", err)
	}
	if len(users) != 2 || users[0] != "a" || users[1] != "c" {
		t.Errorf("NotifiableUsers() = %v, want [a c]", users)
	}
}

// =========================================================================
// PROFILE
// =========================================================================

type fakeUploader struct {
	body []byte
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, userID string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.body, _ = io.ReadAll(body)
	return "https://cdn.example.com/avatars/" + userID, nil
}

func TestProfile_Update(t *testing.T) {
	db := newTestDB(t)
	svc := NewProfileService(db, db.Documents(), nil, discardLogger())
	ctx := context.Background()
	user := createTestAccount(t, db, "alice")
	createTestAccount(t, db, "bob")

	bio := "  runs every morning "
	p, err := svc.Update(ctx, user.ID, ProfileUpdate{Bio: &bio})
	if err != nil {
		t.Fatalf("Update(bio) error = %v", err)
	}
	if p.Bio != "runs every morning" || p.Username != "alice" {
		t.Errorf("profile = %+v", p)
	}

	name := "Alice-2"
	p, err = svc.Update(ctx, user.ID, ProfileUpdate{Username: &name})
	if err != nil {
		t.Fatalf("Update(username) error = %v", err)
	}
	if p.Username != "alice-2" {
		t.Errorf("Username = %q, want %q", p.Username, "alice-2")
	}
	if u, _ := db.GetUserByID(ctx, user.ID); u.Username != "alice-2" {
		t.Errorf("account username = %q", u.Username)
	}

	taken := "bob"
	if _, err := svc.Update(ctx, user.ID, ProfileUpdate{Username: &taken}); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Update(taken) error = %v, want ErrConflict", err)
	}

	long := strings.Repeat("x", maxBioLength+1)
	if _, err := svc.Update(ctx, user.ID, ProfileUpdate{Bio: &long}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Update(long bio) error = %v, want ErrValidation", err)
	}
}

func TestProfile_UploadAvatar(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestAccount(t, db, "alice")

	disabled := NewProfileService(db, db.Documents(), nil, discardLogger())
	if _, err := disabled.UploadAvatar(ctx, user.ID, strings.NewReader("img")); !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("UploadAvatar() without uploader error = %v, want ErrUnavailable", err)
	}

	up := &fakeUploader{}
	svc := NewProfileService(db, db.Documents(), up, discardLogger())
	url, err := svc.UploadAvatar(ctx, user.ID, strings.NewReader("img"))
	if err != nil {
		t.Fatalf("UploadAvatar() error = %v", err)
	}
	if string(up.body) != "img" {
		t.Errorf("uploaded %q", up.body)
	}
	p, _ := svc.Get(ctx, user.ID)
	if p.Avatar != url {
		t.Errorf("Avatar = %q, want %q", p.Avatar, url)
	}
}

// =========================================================================
// FRIENDS
// =========================================================================

func TestFriends_AddListRemove(t *testing.T) {
	db := newTestDB(t)
	svc := NewFriendService(db, db.Documents(), discardLogger())
	ctx := context.Background()
	alice := createTestAccount(t, db, "alice")
	bob := createTestAccount(t, db, "bob")

	if _, err := svc.Add(ctx, alice.ID, "bob"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := svc.Add(ctx, alice.ID, "bob"); err != nil {
		t.Fatalf("repeat Add() error = %v", err)
	}

	list, err := svc.List(ctx, alice.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Username != "bob" {
		t.Errorf("List(alice) = %+v", list)
	}
	if ok, _ := svc.AreFriends(ctx, bob.ID, alice.ID); !ok {
		t.Error("friendship is not symmetric")
	}

	if err := svc.Remove(ctx, bob.ID, "alice"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if ok, _ := svc.AreFriends(ctx, alice.ID, bob.ID); ok {
		t.Error("friendship survived removal")
	}
}

func TestFriends_Invalid(t *testing.T) {
	db := newTestDB(t)
	svc := NewFriendService(db, db.Documents(), discardLogger())
	ctx := context.Background()
	alice := createTestAccount(t, db, "alice")

	if _, err := svc.Add(ctx, alice.ID, "alice"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Add(self) error = %v, want ErrValidation", err)
	}
	if _, err := svc.Add(ctx, alice.ID, "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Add(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Add(ctx, alice.ID, " "); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Add(blank) error = %v, want ErrValidation", err)
	}
}

func TestFriends_TimelineIncludesFriendEvents(t *testing.T) {
	db := newTestDB(t)
	friends := NewFriendService(db, db.Documents(), discardLogger())
	ctx := context.Background()
	alice := createTestAccount(t, db, "alice")
	bob := createTestAccount(t, db, "bob")
	_, _ = friends.Add(ctx, alice.ID, "bob")

	sessions := NewSessions(ctx, db.Documents(), FixedClock("2024-05-01"), discardLogger())
	t.Cleanup(sessions.Close)

	bobTracker, _ := sessions.Tracker(ctx, bob.ID)
	ev, _ := bobTracker.Events.AddEvent(ctx, "2024-05-01", "Bob's ride", "18:00")

	aliceTracker, err := sessions.Tracker(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	timeline, err := aliceTracker.Events.Timeline(ctx)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(timeline) != 1 || !timeline[0].IsFriendEvent || timeline[0].OwnerID != bob.ID {
		t.Fatalf("Timeline() = %+v", timeline)
	}
	if _, err := aliceTracker.Events.CompleteEvent(ctx, ev.ID); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("CompleteEvent(friend) error = %v, want ErrForbidden", err)
	}
}

// =========================================================================
// CHAT
// =========================================================================

func TestChat_SendHistorySubscribe(t *testing.T) {
	svc := NewChatService(newTestDB(t), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chatID := model.ChatIDFor("2024-05-01", "Morning run")
	live, err := svc.Subscribe(ctx, chatID, "u2")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := svc.Send(ctx, chatID, "u1", "  see you there "); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case msg := <-live:
		if msg.Text != "see you there" || msg.SenderID != "u1" {
			t.Errorf("live message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber got nothing")
	}

	history, err := svc.History(ctx, chatID, "u2", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Text != "see you there" {
		t.Errorf("History() = %+v", history)
	}
}

func TestChat_Validation(t *testing.T) {
	svc := NewChatService(newTestDB(t), discardLogger())
	ctx := context.Background()
	dm := DirectChatID("alice1", "bob2")

	tests := []struct {
		name    string
		chatID  string
		userID  string
		text    string
		wantErr error
	}{
		{"signed out", "run", "", "hi", apperror.ErrUnauthorized},
		{"empty text", "run", "u1", "   ", apperror.ErrValidation},
		{"too long", "run", "u1", strings.Repeat("a", maxMessageLength+1), apperror.ErrValidation},
		{"bad chat id", "Not A Slug", "u1", "hi", apperror.ErrValidation},
		{"outsider in dm", dm, "carol3", "hi", apperror.ErrForbidden},
		{"participant in dm", dm, "bob2", "hi", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tt.chatID, tt.userID, tt.text)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Send() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDirectChatID_Symmetric(t *testing.T) {
	if DirectChatID("a1", "b2") != DirectChatID("b2", "a1") {
		t.Error("DirectChatID depends on argument order")
	}
}

// =========================================================================
// NEARBY
// =========================================================================

func TestHaversineMeters(t *testing.T) {
	// one degree of latitude is about 111.2 km
	d := HaversineMeters(0, 0, 1, 0)
	if math.Abs(d-111195) > 100 {
		t.Errorf("HaversineMeters(1° lat) = %.0f", d)
	}
	if d := HaversineMeters(51.5, -0.12, 51.5, -0.12); d != 0 {
		t.Errorf("same point distance = %f", d)
	}
}

func TestNearby(t *testing.T) {
	db := newTestDB(t)
	svc := NewNearbyService(db, FixedClock("2024-05-01"), 0)
	ctx := context.Background()

	create := func(name string, date model.Day, lat, lon float64) {
		t.Helper()
		_, err := svc.Create(ctx, "u1", model.PublicEvent{Name: name, Date: date, Latitude: lat, Longitude: lon})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}
	create("far", "2024-05-01", 40.0, -74.0)
	create("close", "2024-05-02", 40.75, -73.99)
	create("closest", "2024-05-01", 40.7581, -73.9855)

	got, err := svc.Nearby(ctx, 40.758, -73.9855)
	if err != nil {
		t.Fatalf("Nearby() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "closest" || got[1].Name != "close" {
		t.Fatalf("Nearby() = %+v", got)
	}
	if got[0].DistanceMeters > got[1].DistanceMeters {
		t.Error("results not sorted by distance")
	}
}

func TestNearby_CreateValidation(t *testing.T) {
	svc := NewNearbyService(newTestDB(t), FixedClock("2024-05-01"), 0)
	ctx := context.Background()

	tests := []struct {
		name string
		ev   model.PublicEvent
	}{
		{"no name", model.PublicEvent{Date: "2024-05-01"}},
		{"past", model.PublicEvent{Name: "x", Date: "2024-04-30"}},
		{"bad date", model.PublicEvent{Name: "x", Date: "soon"}},
		{"bad latitude", model.PublicEvent{Name: "x", Date: "2024-05-01", Latitude: 91}},
		{"bad longitude", model.PublicEvent{Name: "x", Date: "2024-05-01", Longitude: -181}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, "u1", tt.ev); !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

// =========================================================================
// NOTIFICATIONS
// =========================================================================

func TestSendStreakReminders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	settings := NewSettingsService(db)
	svc := NewNotificationService(db, settings, db.Documents(), FixedClock("2024-05-02"), discardLogger())

	atRisk := createTestAccount(t, db, "atrisk")
	done := createTestAccount(t, db, "done")
	muted := createTestAccount(t, db, "muted")

	setProgress := func(id string, last string) {
		t.Helper()
		err := db.Documents().Update(ctx, id, map[string]any{
			model.FieldPoints:      10,
			model.FieldStreak:      1,
			model.FieldStreakDates: []string{last},
			model.FieldLastCheckIn: last,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	setProgress(atRisk.ID, "2024-05-01")
	setProgress(done.ID, "2024-05-02")
	setProgress(muted.ID, "2024-05-01")

	for _, id := range []string{atRisk.ID, done.ID} {
		_, _ = settings.Update(ctx, id, model.Settings{model.SettingNotificationsEnabled: true})
	}

	sent, err := svc.SendStreakReminders(ctx)
	if err != nil {
		t.Fatalf("SendStreakReminders() error = %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}

	again, _ := svc.SendStreakReminders(ctx)
	if again != 0 {
		t.Errorf("rerun sent = %d, want 0", again)
	}

	list, err := svc.List(ctx, atRisk.ID, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Kind != model.NotificationStreakAtRisk || list[0].Day != "2024-05-02" {
		t.Errorf("List() = %+v", list)
	}
	if !strings.Contains(list[0].Message, "1-day streak") {
		t.Errorf("Message = %q", list[0].Message)
	}
}
