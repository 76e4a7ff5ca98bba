package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/service"
)

// =========================================================================
// FRIENDS
// =========================================================================

type FriendHandler struct {
	friends *service.FriendService
	logger  *slog.Logger
}

func NewFriendHandler(friends *service.FriendService, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, logger: logger}
}

// HandleList returns the caller's friends.
//
// HTTP: GET /api/friends
func (h *FriendHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	friends, err := h.friends.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

type addFriendRequest struct {
	Username string `json:"username"`
}

// HandleAdd befriends a user by username.
//
// HTTP: POST /api/friends
// REQUEST BODY: {"username": "alice"}
func (h *FriendHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addFriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	friend, err := h.friends.Add(r.Context(), userID, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, friend)
}

// HandleRemove ends a friendship.
//
// HTTP: DELETE /api/friends/{username}
func (h *FriendHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.friends.Remove(r.Context(), userID, pathParam(r, "username")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// CHAT
// =========================================================================

// streamPingInterval keeps idle SSE connections open through proxies.
const streamPingInterval = 25 * time.Second

type ChatHandler struct {
	chat    *service.ChatService
	friends *service.FriendService
	logger  *slog.Logger
}

func NewChatHandler(chat *service.ChatService, friends *service.FriendService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, friends: friends, logger: logger}
}

// HandleHistory returns recent messages, oldest first.
//
// HTTP: GET /api/chats/{chatID}/messages?limit=100
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.chat.History(r.Context(), pathParam(r, "chatID"), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// HandleSend posts a message.
//
// HTTP: POST /api/chats/{chatID}/messages
// REQUEST BODY: {"text": "on my way"}
func (h *ChatHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.chat.Send(r.Context(), pathParam(r, "chatID"), userID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleStream pushes new messages as server-sent events until the client
// disconnects.
//
// HTTP: GET /api/chats/{chatID}/stream
//
// Each message is one "message" event whose data is the JSON message. A
// comment line is sent periodically so idle connections stay open.
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	chatID := pathParam(r, "chatID")
	msgs, err := h.chat.Subscribe(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// the server's write timeout would otherwise cut the stream
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("chat stream: flushing unsupported", slog.String("error", err.Error()))
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("chat stream: encoding message", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				return
			}
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// HandleDirect returns the chat ID for a conversation with a friend.
//
// HTTP: GET /api/chats/direct/{userID}
func (h *ChatHandler) HandleDirect(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	other := pathParam(r, "userID")
	ok, err := h.friends.AreFriends(r.Context(), userID, other)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperror.Forbidden("you can only message friends"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"chatId": service.DirectChatID(userID, other)})
}
