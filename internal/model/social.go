package model

import "time"

// ChatMessage is one message in an event or friend chat thread.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PublicEvent is an event anyone can see on the map.
type PublicEvent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Date      Day       `json:"date"`
	Time      string    `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// DistanceMeters is filled in by nearby searches only.
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
}

// Notification is a reminder queued for a user. Clients poll for them.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Day       Day       `json:"day"`
	CreatedAt time.Time `json:"createdAt"`
}

const NotificationStreakAtRisk = "streak_at_risk"

// Friend is a summary of a friend for list views.
type Friend struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}
