package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

// settingsNamespacePrefix scopes each user's toggles in the key-value space.
const settingsNamespacePrefix = "user/"

// SettingsService reads and writes per-user toggles.
type SettingsService struct {
	space repository.KeyValueSpace
}

func NewSettingsService(space repository.KeyValueSpace) *SettingsService {
	return &SettingsService{space: space}
}

// Get returns every toggle; unset ones are false. Values other than "true"
// also read as false.
func (s *SettingsService) Get(ctx context.Context, userID string) (model.Settings, error) {
	kv := s.space.Namespace(settingsNamespacePrefix + userID)
	out := make(model.Settings, len(model.SettingKeys))
	for _, key := range model.SettingKeys {
		raw, _, err := kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("service/settings: reading %s: %w", key, err)
		}
		on, _ := strconv.ParseBool(raw)
		out[key] = on
	}
	return out, nil
}

// Update writes the given toggles and returns the full set. Unknown keys
// are rejected before anything is written.
func (s *SettingsService) Update(ctx context.Context, userID string, changes model.Settings) (model.Settings, error) {
	for key := range changes {
		if !slices.Contains(model.SettingKeys, key) {
			return nil, apperror.ValidationFailed(key, fmt.Sprintf("unknown setting %q", key))
		}
	}

	kv := s.space.Namespace(settingsNamespacePrefix + userID)
	for key, on := range changes {
		if err := kv.Set(ctx, key, strconv.FormatBool(on)); err != nil {
			return nil, fmt.Errorf("service/settings: writing %s: %w", key, err)
		}
	}
	return s.Get(ctx, userID)
}

// NotifiableUsers lists users who turned notifications on.
func (s *SettingsService) NotifiableUsers(ctx context.Context) ([]string, error) {
	namespaces, err := s.space.NamespacesWith(ctx, model.SettingNotificationsEnabled, "true")
	if err != nil {
		return nil, fmt.Errorf("service/settings: listing notifiable users: %w", err)
	}
	users := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		if id, ok := strings.CutPrefix(ns, settingsNamespacePrefix); ok && id != "" {
			users = append(users, id)
		}
	}
	return users, nil
}
