package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/avatar"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

const maxBioLength = 280

// ProfileService edits the public part of a user document.
type ProfileService struct {
	users   repository.UserRepository
	docs    repository.DocumentStore
	avatars avatar.Uploader // nil when no bucket is configured
	logger  *slog.Logger
}

func NewProfileService(users repository.UserRepository, docs repository.DocumentStore, avatars avatar.Uploader, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, docs: docs, avatars: avatars, logger: logger}
}

// ProfileUpdate carries optional changes; nil fields are left alone.
type ProfileUpdate struct {
	Username *string `json:"username"`
	Bio      *string `json:"bio"`
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	doc, err := s.docs.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: loading %s: %w", userID, err)
	}
	return profileOf(userID, doc), nil
}

// Update writes only the changed fields. A new username is reserved on the
// account first, so a taken name fails before the document changes.
func (s *ProfileService) Update(ctx context.Context, userID string, upd ProfileUpdate) (*model.Profile, error) {
	fields := map[string]any{}

	if upd.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*upd.Username))
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
		if err := s.users.UpdateUsername(ctx, userID, username); err != nil {
			return nil, fmt.Errorf("service/profile: renaming %s: %w", userID, err)
		}
		fields[model.FieldUsername] = username
	}
	if upd.Bio != nil {
		bio := strings.TrimSpace(*upd.Bio)
		if utf8.RuneCountInString(bio) > maxBioLength {
			return nil, apperror.ValidationFailed("bio", fmt.Sprintf("bio must be %d characters or fewer", maxBioLength))
		}
		fields[model.FieldBio] = bio
	}

	if len(fields) > 0 {
		if err := s.docs.Update(ctx, userID, fields); err != nil {
			return nil, fmt.Errorf("service/profile: updating %s: %w", userID, err)
		}
	}
	return s.Get(ctx, userID)
}

// UploadAvatar stores the image and records its URL on the document.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID string, body io.Reader) (string, error) {
	if s.avatars == nil {
		return "", apperror.Unavailable("avatar uploads are not configured")
	}
	url, err := s.avatars.Upload(ctx, userID, body)
	if err != nil {
		return "", err
	}
	if err := s.docs.Update(ctx, userID, map[string]any{model.FieldAvatar: url}); err != nil {
		return "", fmt.Errorf("service/profile: saving avatar of %s: %w", userID, err)
	}
	s.logger.Info("avatar updated", slog.String("userID", userID))
	return url, nil
}

func profileOf(userID string, doc *model.UserDocument) *model.Profile {
	return &model.Profile{
		ID:       userID,
		Email:    doc.Email,
		Username: doc.Username,
		Bio:      doc.Bio,
		Avatar:   doc.Avatar,
		Points:   doc.Points,
		Streak:   doc.Streak,
	}
}
