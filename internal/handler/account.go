package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/avatar"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/service"
)

// =========================================================================
// PROFILE
// =========================================================================

type ProfileHandler struct {
	profiles *service.ProfileService
	settings *service.SettingsService
	friends  *service.FriendService
	logger   *slog.Logger
}

func NewProfileHandler(
	profiles *service.ProfileService,
	settings *service.SettingsService,
	friends *service.FriendService,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, settings: settings, friends: friends, logger: logger}
}

// HandleGet returns the caller's own profile.
//
// HTTP: GET /api/profile
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdate changes username and/or bio.
//
// HTTP: PATCH /api/profile
// REQUEST BODY: {"username": "new-name", "bio": "..."}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var upd service.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.profiles.Update(r.Context(), userID, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUploadAvatar stores the raw request body as the avatar image.
//
// HTTP: PUT /api/profile/avatar
func (h *ProfileHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	body := http.MaxBytesReader(w, r.Body, avatar.MaxSize)
	url, err := h.profiles.UploadAvatar(r.Context(), userID, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar": url})
}

// HandleGetUser returns another user's public profile. Private profiles are
// visible to friends only. Email is never included.
//
// HTTP: GET /api/users/{id}
func (h *ProfileHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	viewerID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := pathParam(r, "id")

	if userID != viewerID {
		settings, err := h.settings.Get(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		if settings[model.SettingPrivateProfile] {
			friends, err := h.friends.AreFriends(r.Context(), userID, viewerID)
			if err != nil {
				writeError(w, err)
				return
			}
			if !friends {
				writeError(w, apperror.Forbidden("this profile is private"))
				return
			}
		}
	}

	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	p.Email = ""
	writeJSON(w, http.StatusOK, p)
}

// =========================================================================
// SETTINGS
// =========================================================================

type SettingsHandler struct {
	settings *service.SettingsService
}

func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// HTTP: GET /api/settings
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.settings.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleUpdate sets the given toggles and returns all of them.
//
// HTTP: PATCH /api/settings
// REQUEST BODY: {"darkMode": true}
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var changes model.Settings
	if err := decodeJSON(w, r, &changes); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.settings.Update(r.Context(), userID, changes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// =========================================================================
// NOTIFICATIONS
// =========================================================================

type NotificationHandler struct {
	notifications *service.NotificationService
}

func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// HandleList returns the newest notifications first.
//
// HTTP: GET /api/notifications?limit=20
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	list, err := h.notifications.List(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
