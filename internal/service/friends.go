package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

// FriendService manages the friends field of user documents. Friendship is
// symmetric: adding or removing writes both documents.
type FriendService struct {
	users  repository.UserRepository
	docs   repository.DocumentStore
	logger *slog.Logger
}

func NewFriendService(users repository.UserRepository, docs repository.DocumentStore, logger *slog.Logger) *FriendService {
	return &FriendService{users: users, docs: docs, logger: logger}
}

// List returns the user's friends. Friends whose document is gone are
// skipped.
func (s *FriendService) List(ctx context.Context, userID string) ([]model.Friend, error) {
	ids, err := s.friendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Friend, 0, len(ids))
	for _, id := range ids {
		doc, err := s.docs.Get(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("service/friends: loading friend %s: %w", id, err)
		}
		out = append(out, model.Friend{ID: id, Username: doc.Username, Avatar: doc.Avatar})
	}
	return out, nil
}

// Add befriends the user with the given username. Adding an existing friend
// changes nothing.
func (s *FriendService) Add(ctx context.Context, userID, username string) (*model.Friend, error) {
	friend, err := s.lookup(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	if err := s.link(ctx, userID, friend.ID, true); err != nil {
		return nil, err
	}
	if err := s.link(ctx, friend.ID, userID, true); err != nil {
		return nil, err
	}
	s.logger.Info("friend added",
		slog.String("userID", userID),
		slog.String("friendID", friend.ID),
	)
	return &model.Friend{ID: friend.ID, Username: friend.Username, Avatar: friend.AvatarURL}, nil
}

// Remove ends a friendship on both sides. Removing a non-friend is a no-op.
func (s *FriendService) Remove(ctx context.Context, userID, username string) error {
	friend, err := s.lookup(ctx, userID, username)
	if err != nil {
		return err
	}
	if err := s.link(ctx, userID, friend.ID, false); err != nil {
		return err
	}
	return s.link(ctx, friend.ID, userID, false)
}

// AreFriends reports whether b is in a's friend list.
func (s *FriendService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	ids, err := s.friendIDs(ctx, a)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, b), nil
}

func (s *FriendService) lookup(ctx context.Context, userID, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	friend, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/friends: looking up %s: %w", username, err)
	}
	if friend.ID == userID {
		return nil, apperror.ValidationFailed("username", "you cannot befriend yourself")
	}
	return friend, nil
}

func (s *FriendService) friendIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if _, err := s.docs.GetField(ctx, userID, model.FieldFriends, &ids); err != nil {
		return nil, fmt.Errorf("service/friends: reading friends of %s: %w", userID, err)
	}
	return ids, nil
}

// link adds (or removes) other in owner's friend list.
func (s *FriendService) link(ctx context.Context, owner, other string, add bool) error {
	ids, err := s.friendIDs(ctx, owner)
	if err != nil {
		return err
	}
	has := slices.Contains(ids, other)
	switch {
	case add && has, !add && !has:
		return nil
	case add:
		ids = append(ids, other)
	default:
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == other })
	}
	if ids == nil {
		ids = []string{}
	}
	if err := s.docs.Update(ctx, owner, map[string]any{model.FieldFriends: ids}); err != nil {
		return fmt.Errorf("service/friends: writing friends of %s: %w", owner, err)
	}
	return nil
}
