package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/service"
)

// TrackerSource hands out the tracker of a signed-in user.
// *service.Sessions is the production implementation.
type TrackerSource interface {
	Tracker(ctx context.Context, userID string) (*service.Tracker, error)
}

// ProgressHandler serves the streak: check-ins, freezes and the calendar.
type ProgressHandler struct {
	trackers TrackerSource
	logger   *slog.Logger
}

func NewProgressHandler(trackers TrackerSource, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{trackers: trackers, logger: logger}
}

type progressResponse struct {
	Progress    model.UserProgress `json:"progress"`
	Today       model.Day          `json:"today"`
	MarkedDates model.MarkedDates  `json:"markedDates"`
}

func progressOf(t *service.Tracker, p model.UserProgress) progressResponse {
	return progressResponse{
		Progress:    p,
		Today:       t.Streak.Today(),
		MarkedDates: service.RenderMarkers(p.StreakDates),
	}
}

// tracker resolves the caller's tracker or writes the error response.
func tracker(w http.ResponseWriter, r *http.Request, src TrackerSource) (*service.Tracker, bool) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	t, err := src.Tracker(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return t, true
}

// HandleGet returns the current progress.
//
// HTTP: GET /api/progress
func (h *ProgressHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, progressOf(t, t.Streak.Snapshot()))
}

// HandleCheckIn checks in for today. Repeating it on the same day is a no-op.
//
// HTTP: POST /api/progress/checkin
func (h *ProgressHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	p, err := t.Streak.CheckInToday(r.Context())
	writeRetained(w, http.StatusOK, progressOf(t, p), err)
}

type pressRequest struct {
	Date string `json:"date"`
}

type pressResponse struct {
	progressResponse
	Accepted bool `json:"accepted"`
}

// HandlePress handles a tap on a calendar day. Only today counts.
//
// HTTP: POST /api/progress/press
// REQUEST BODY: {"date": "2024-05-01"}
func (h *ProgressHandler) HandlePress(w http.ResponseWriter, r *http.Request) {
	var req pressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	day, err := model.ParseDay(req.Date)
	if err != nil {
		writeError(w, apperror.ValidationFailed("date", "not a calendar date"))
		return
	}
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	p, accepted, err := t.Streak.PressDay(r.Context(), day)
	writeRetained(w, http.StatusOK, pressResponse{progressOf(t, p), accepted}, err)
}

// HandleRedeemFreeze buys a streak freeze.
//
// HTTP: POST /api/progress/freezes
func (h *ProgressHandler) HandleRedeemFreeze(w http.ResponseWriter, r *http.Request) {
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	p, err := t.Streak.RedeemFreeze(r.Context())
	writeRetained(w, http.StatusOK, progressOf(t, p), err)
}

// HandleApplyFreeze spends a freeze on yesterday.
//
// HTTP: POST /api/progress/freezes/apply
func (h *ProgressHandler) HandleApplyFreeze(w http.ResponseWriter, r *http.Request) {
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	p, err := t.Streak.ApplyFreeze(r.Context(), t.Streak.Today())
	writeRetained(w, http.StatusOK, progressOf(t, p), err)
}

// HandleCalendar returns streak highlighting merged with event dots. Friend
// dots appear once the timeline has been loaded.
//
// HTTP: GET /api/calendar
func (h *ProgressHandler) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.Calendar())
}
