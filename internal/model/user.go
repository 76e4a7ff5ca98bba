// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an account known to the identity provider.
//
// Accounts come from email/password sign-up or from GitHub sign-in. GitHubID
// is zero for email accounts and PasswordHash is empty for GitHub accounts.
// Profile data shown to other users (bio, avatar, points) lives in the user's
// document, not here.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	GitHubID     int64     `json:"githubId,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document field names. They double as JSON keys in both document stores.
const (
	FieldEmail       = "email"
	FieldUsername    = "username"
	FieldBio         = "bio"
	FieldAvatar      = "avatar"
	FieldPoints      = "points"
	FieldStreak      = "streak"
	FieldStreakDates = "streakDates"
	FieldLastCheckIn = "lastCheckIn"
	FieldFreezes     = "freezes"
	FieldEvents      = "events"
	FieldFriends     = "friends"
)

// UserDocument is the remote per-user record. Writers update it field by
// field, so every field must tolerate being absent.
type UserDocument struct {
	ID          string   `json:"-"`
	Email       string   `json:"email"`
	Username    string   `json:"username,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Points      int      `json:"points"`
	Streak      int      `json:"streak,omitempty"`
	StreakDates []string `json:"streakDates,omitempty"`
	LastCheckIn string   `json:"lastCheckIn,omitempty"`
	Freezes     int      `json:"freezes,omitempty"`
	Events      []Event  `json:"events,omitempty"`
	Friends     []string `json:"friends,omitempty"`
}

// Progress extracts the stored progress fields for normalisation.
func (d *UserDocument) Progress() StoredProgress {
	return StoredProgress{
		TotalPoints: d.Points,
		Streak:      d.Streak,
		LastDate:    d.LastCheckIn,
		StreakDates: d.StreakDates,
		Freezes:     d.Freezes,
	}
}

// Profile is the public face of a user.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	Avatar   string `json:"avatar,omitempty"`
	Points   int    `json:"points"`
	Streak   int    `json:"streak"`
}
