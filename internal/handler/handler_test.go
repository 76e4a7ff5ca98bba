package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/waypoint/internal/auth"
	"github.com/sakif/waypoint/internal/handler"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository/sqlite"
	"github.com/sakif/waypoint/internal/service"
)

const testToday = model.Day("2024-05-01")

// testEnv runs the handlers over real services and an in-memory database.
// Requests pick their user with the X-Test-User header instead of a token.
type testEnv struct {
	router http.Handler
	db     *sqlite.DB
	users  map[string]string // username → ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := service.FixedClock(testToday)
	docs := db.Documents()
	sessions := service.NewSessions(ctx, docs, clock, logger)
	t.Cleanup(sessions.Close)

	friends := service.NewFriendService(db, docs, logger)
	settings := service.NewSettingsService(db)
	progressH := handler.NewProgressHandler(sessions, logger)
	eventH := handler.NewEventHandler(sessions, logger)
	friendH := handler.NewFriendHandler(friends, logger)
	chatH := handler.NewChatHandler(service.NewChatService(db, logger), friends, logger)
	profileH := handler.NewProfileHandler(service.NewProfileService(db, docs, nil, logger), settings, friends, logger)
	settingsH := handler.NewSettingsHandler(settings)
	publicH := handler.NewPublicEventHandler(service.NewNearbyService(db, clock, 0))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id := req.Header.Get("X-Test-User"); id != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/progress", progressH.HandleGet)
	r.Post("/api/progress/checkin", progressH.HandleCheckIn)
	r.Post("/api/progress/press", progressH.HandlePress)
	r.Post("/api/progress/freezes", progressH.HandleRedeemFreeze)
	r.Get("/api/calendar", progressH.HandleCalendar)
	r.Get("/api/events", eventH.HandleList)
	r.Post("/api/events", eventH.HandleAdd)
	r.Delete("/api/events/{id}", eventH.HandleRemove)
	r.Post("/api/events/{id}/complete", eventH.HandleComplete)
	r.Post("/api/friends", friendH.HandleAdd)
	r.Get("/api/friends", friendH.HandleList)
	r.Get("/api/chats/direct/{userID}", chatH.HandleDirect)
	r.Post("/api/chats/{chatID}/messages", chatH.HandleSend)
	r.Get("/api/chats/{chatID}/messages", chatH.HandleHistory)
	r.Get("/api/users/{id}", profileH.HandleGetUser)
	r.Patch("/api/settings", settingsH.HandleUpdate)
	r.Get("/api/public-events/nearby", publicH.HandleNearby)
	r.Post("/api/public-events", publicH.HandleCreate)

	env := &testEnv{router: r, db: db, users: map[string]string{}}
	for _, name := range []string{"alice", "bob", "carol"} {
		u := &model.User{Email: name + "@example.com", Username: name}
		require.NoError(t, db.Create(ctx, u))
		require.NoError(t, docs.Put(ctx, u.ID, &model.UserDocument{Email: u.Email, Username: name}))
		env.users[name] = u.ID
	}
	return env
}

func (e *testEnv) do(t *testing.T, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if user != "" {
		req.Header.Set("X-Test-User", e.users[user])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

type progressBody struct {
	Progress    model.UserProgress `json:"progress"`
	Today       model.Day          `json:"today"`
	MarkedDates model.MarkedDates  `json:"markedDates"`
	Accepted    bool               `json:"accepted"`
}

// =========================================================================
// PROGRESS
// =========================================================================

func TestProgressHandler_CheckIn(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "alice", http.MethodPost, "/api/progress/checkin", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode[progressBody](t, rr)
	assert.Equal(t, 10, body.Progress.TotalPoints)
	assert.Equal(t, 1, body.Progress.CurrentStreak)
	assert.Equal(t, testToday, body.Today)
	assert.True(t, body.MarkedDates[testToday].Selected)

	// same day again: nothing changes
	rr = env.do(t, "alice", http.MethodPost, "/api/progress/checkin", nil)
	assert.Equal(t, 10, decode[progressBody](t, rr).Progress.TotalPoints)
}

func TestProgressHandler_RequiresUser(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "", http.MethodGet, "/api/progress", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestProgressHandler_Press(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "alice", http.MethodPost, "/api/progress/press", map[string]string{"date": "2024-04-30"})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[progressBody](t, rr)
	assert.False(t, body.Accepted)
	assert.Zero(t, body.Progress.CurrentStreak)

	rr = env.do(t, "alice", http.MethodPost, "/api/progress/press", map[string]string{"date": string(testToday)})
	body = decode[progressBody](t, rr)
	assert.True(t, body.Accepted)
	assert.Equal(t, 1, body.Progress.CurrentStreak)

	rr = env.do(t, "alice", http.MethodPost, "/api/progress/press", map[string]string{"date": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProgressHandler_RedeemInsufficient(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "alice", http.MethodPost, "/api/progress/freezes", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decode[handler.ErrorResponse](t, rr)
	assert.Equal(t, "insufficient_points", body.Error)
}

// =========================================================================
// EVENTS
// =========================================================================

func TestEventHandler_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "alice", http.MethodPost, "/api/events", map[string]string{"date": "2024-05-01", "name": "A", "time": "10:00"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = env.do(t, "alice", http.MethodPost, "/api/events", map[string]string{"date": "2024-05-01", "name": "B", "time": "09:00"})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[model.Event](t, rr)

	rr = env.do(t, "alice", http.MethodGet, "/api/events?friends=false", nil)
	events := decode[[]model.Event](t, rr)
	require.Len(t, events, 2)
	assert.Equal(t, "B", events[0].Name)
	assert.Equal(t, "A", events[1].Name)

	rr = env.do(t, "alice", http.MethodPost, "/api/events/"+url.PathEscape(created.ID)+"/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, model.CompletionPoints, decode[progressBody](t, rr).Progress.TotalPoints)

	rr = env.do(t, "alice", http.MethodDelete, "/api/events/nonexistent", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, "alice", http.MethodGet, "/api/events?friends=false", nil)
	events = decode[[]model.Event](t, rr)
	require.Len(t, events, 1)
	assert.Equal(t, "A", events[0].Name)
}

func TestEventHandler_RemoveNameWithPercent(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "alice", http.MethodPost, "/api/events", map[string]string{"date": "2024-05-01", "name": "Sale 50%41", "time": "09:00"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sale := decode[model.Event](t, rr)
	rr = env.do(t, "alice", http.MethodPost, "/api/events", map[string]string{"date": "2024-05-01", "name": "Sale 50A", "time": "09:00"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, "alice", http.MethodDelete, "/api/events/"+url.PathEscape(sale.ID), nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, "alice", http.MethodGet, "/api/events?friends=false", nil)
	events := decode[[]model.Event](t, rr)
	require.Len(t, events, 1)
	assert.Equal(t, "Sale 50A", events[0].Name)
}

func TestEventHandler_InvalidDate(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "alice", http.MethodPost, "/api/events", map[string]string{"date": "2024-13-01", "name": "A"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEventHandler_FriendTimeline(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "alice", http.MethodPost, "/api/friends", map[string]string{"username": "bob"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = env.do(t, "bob", http.MethodPost, "/api/events", map[string]string{"date": "2024-05-01", "name": "Ride", "time": "18:00"})
	require.Equal(t, http.StatusCreated, rr.Code)
	ride := decode[model.Event](t, rr)

	rr = env.do(t, "alice", http.MethodGet, "/api/events", nil)
	timeline := decode[[]model.Event](t, rr)
	require.Len(t, timeline, 1)
	assert.True(t, timeline[0].IsFriendEvent)

	rr = env.do(t, "alice", http.MethodPost, "/api/events/"+url.PathEscape(ride.ID)+"/complete", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, "alice", http.MethodGet, "/api/calendar", nil)
	cal := decode[model.MarkedDates](t, rr)
	assert.Equal(t, model.FriendEventColor, cal[testToday].DotColor)
}

// =========================================================================
// SOCIAL
// =========================================================================

func TestChatHandler_DirectRequiresFriendship(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "alice", http.MethodGet, "/api/chats/direct/"+env.users["bob"], nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	env.do(t, "alice", http.MethodPost, "/api/friends", map[string]string{"username": "bob"})
	rr = env.do(t, "alice", http.MethodGet, "/api/chats/direct/"+env.users["bob"], nil)
	require.Equal(t, http.StatusOK, rr.Code)
	chatID := decode[map[string]string](t, rr)["chatId"]
	require.NotEmpty(t, chatID)

	rr = env.do(t, "bob", http.MethodPost, "/api/chats/"+chatID+"/messages", map[string]string{"text": "hi alice"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = env.do(t, "carol", http.MethodGet, "/api/chats/"+chatID+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, "alice", http.MethodGet, "/api/chats/"+chatID+"/messages", nil)
	msgs := decode[[]model.ChatMessage](t, rr)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi alice", msgs[0].Text)
}

func TestProfileHandler_PrivateProfile(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "bob", http.MethodGet, "/api/users/"+env.users["alice"], nil)
	require.Equal(t, http.StatusOK, rr.Code)
	profile := decode[model.Profile](t, rr)
	assert.Equal(t, "alice", profile.Username)
	assert.Empty(t, profile.Email)

	rr = env.do(t, "alice", http.MethodPatch, "/api/settings", map[string]bool{model.SettingPrivateProfile: true})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "bob", http.MethodGet, "/api/users/"+env.users["alice"], nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	env.do(t, "alice", http.MethodPost, "/api/friends", map[string]string{"username": "bob"})
	rr = env.do(t, "bob", http.MethodGet, "/api/users/"+env.users["alice"], nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPublicEventHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "alice", http.MethodPost, "/api/public-events", map[string]any{
		"name": "Park run", "date": "2024-05-01", "time": "08:00", "latitude": 51.5074, "longitude": -0.1278,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = env.do(t, "", http.MethodGet, "/api/public-events/nearby?lat=51.5080&lon=-0.1281", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	events := decode[[]model.PublicEvent](t, rr)
	require.Len(t, events, 1)
	assert.Equal(t, "Park run", events[0].Name)
	assert.Positive(t, events[0].DistanceMeters)

	rr = env.do(t, "", http.MethodGet, "/api/public-events/nearby?lat=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
