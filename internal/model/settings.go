package model

// Settings toggle names. They are also the key-value keys, stored as
// "true" or "false".
const (
	SettingPrivateProfile       = "privateProfile"
	SettingNotificationsEnabled = "notificationsEnabled"
	SettingLocationEnabled      = "locationEnabled"
	SettingDarkMode             = "darkMode"
)

// SettingKeys lists every toggle. All default to false.
var SettingKeys = []string{
	SettingPrivateProfile,
	SettingNotificationsEnabled,
	SettingLocationEnabled,
	SettingDarkMode,
}

// Settings is a user's app preferences.
type Settings map[string]bool
