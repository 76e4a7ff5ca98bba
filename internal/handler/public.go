package handler

import (
	"net/http"
	"strconv"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/service"
)

// PublicEventHandler serves events shown on the map.
type PublicEventHandler struct {
	nearby *service.NearbyService
}

func NewPublicEventHandler(nearby *service.NearbyService) *PublicEventHandler {
	return &PublicEventHandler{nearby: nearby}
}

// HandleNearby lists upcoming public events around a point, nearest first.
//
// HTTP: GET /api/public-events/nearby?lat=40.7&lon=-73.9
func (h *PublicEventHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, apperror.ValidationFailed("location", "lat and lon query parameters are required"))
		return
	}
	events, err := h.nearby.Nearby(r.Context(), lat, lon)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleCreate publishes an event.
//
// HTTP: POST /api/public-events
// REQUEST BODY: {"name": "...", "date": "2024-05-01", "time": "18:00", "latitude": 40.7, "longitude": -73.9}
func (h *PublicEventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req model.PublicEvent
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	created, err := h.nearby.Create(r.Context(), userID, model.PublicEvent{
		Name:      req.Name,
		Date:      req.Date,
		Time:      req.Time,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
