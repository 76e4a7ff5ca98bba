package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
)

// EventHandler serves the user's calendar events.
type EventHandler struct {
	trackers TrackerSource
	logger   *slog.Logger
}

func NewEventHandler(trackers TrackerSource, logger *slog.Logger) *EventHandler {
	return &EventHandler{trackers: trackers, logger: logger}
}

// HandleList returns own and friend events in date order. Pass
// ?friends=false for own events only.
//
// HTTP: GET /api/events
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	if r.URL.Query().Get("friends") == "false" {
		writeJSON(w, http.StatusOK, t.Events.Events())
		return
	}
	events, err := t.Events.Timeline(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type addEventRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Time string `json:"time"`
}

// HandleAdd creates an event. The same date, name and time replaces the
// existing event.
//
// HTTP: POST /api/events
// REQUEST BODY: {"date": "2024-05-01", "name": "Run", "time": "07:00"}
func (h *EventHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addEventRequest
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
	ev, err := t.Events.AddEvent(r.Context(), day, req.Name, req.Time)
	writeRetained(w, http.StatusCreated, ev, err)
}

// HandleRemove deletes an event. Unknown IDs succeed.
//
// HTTP: DELETE /api/events/{id}
func (h *EventHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	if err := t.Events.RemoveEvent(r.Context(), pathParam(r, "id")); err != nil {
		writeRetained(w, http.StatusOK, t.Events.Events(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleComplete marks today's event done and awards points.
//
// HTTP: POST /api/events/{id}/complete
func (h *EventHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	t, ok := tracker(w, r, h.trackers)
	if !ok {
		return
	}
	p, err := t.Events.CompleteEvent(r.Context(), pathParam(r, "id"))
	writeRetained(w, http.StatusOK, progressOf(t, p), err)
}
