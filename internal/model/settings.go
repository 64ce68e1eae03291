package model

import (
	"fmt"
	"strconv"
)

// DefaultUserID is the single implicit profile this service serves.
const DefaultUserID = "default"

// NotificationSettings holds per-prayer alert switches and adhan playback
// preferences for one profile.
type NotificationSettings struct {
	ID             string `db:"id"              json:"id"`
	UserID         string `db:"user_id"         json:"userId"`
	FajrEnabled    bool   `db:"fajr_enabled"    json:"fajrEnabled"`
	DhuhrEnabled   bool   `db:"dhuhr_enabled"   json:"dhuhrEnabled"`
	AsrEnabled     bool   `db:"asr_enabled"     json:"asrEnabled"`
	MaghribEnabled bool   `db:"maghrib_enabled" json:"maghribEnabled"`
	IshaEnabled    bool   `db:"isha_enabled"    json:"ishaEnabled"`
	AdhanAutoPlay  bool   `db:"adhan_auto_play" json:"adhanAutoPlay"`
	Volume         string `db:"volume"          json:"volume"`
}

// DefaultNotificationSettings returns the settings created lazily the first
// time a profile is read.
func DefaultNotificationSettings(userID string) NotificationSettings {
	return NotificationSettings{
		UserID:         userID,
		FajrEnabled:    true,
		DhuhrEnabled:   false,
		AsrEnabled:     true,
		MaghribEnabled: true,
		IshaEnabled:    false,
		AdhanAutoPlay:  true,
		Volume:         "80",
	}
}

// Enabled reports whether alerts are switched on for key.
func (s NotificationSettings) Enabled(key PrayerKey) bool {
	switch key {
	case Fajr:
		return s.FajrEnabled
	case Dhuhr:
		return s.DhuhrEnabled
	case Asr:
		return s.AsrEnabled
	case Maghrib:
		return s.MaghribEnabled
	case Isha:
		return s.IshaEnabled
	}
	return false
}

// AnyEnabled reports whether at least one prayer alert is on.
func (s NotificationSettings) AnyEnabled() bool {
	for _, k := range PrayerKeys {
		if s.Enabled(k) {
			return true
		}
	}
	return false
}

// VolumeLevel returns the volume as an integer, defaulting to 80 when the
// stored text is unusable.
func (s NotificationSettings) VolumeLevel() int {
	v, err := ParseVolume(s.Volume)
	if err != nil {
		return 80
	}
	return v
}

// ParseVolume parses a 0–100 volume stored as text.
func ParseVolume(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVolume, s)
	}
	return v, nil
}

// SettingsUpdate is a partial change to NotificationSettings. Nil fields
// are left untouched.
type SettingsUpdate struct {
	FajrEnabled    *bool   `json:"fajrEnabled,omitempty"`
	DhuhrEnabled   *bool   `json:"dhuhrEnabled,omitempty"`
	AsrEnabled     *bool   `json:"asrEnabled,omitempty"`
	MaghribEnabled *bool   `json:"maghribEnabled,omitempty"`
	IshaEnabled    *bool   `json:"ishaEnabled,omitempty"`
	AdhanAutoPlay  *bool   `json:"adhanAutoPlay,omitempty"`
	Volume         *string `json:"volume,omitempty"`
}

// Validate rejects updates that would break a settings invariant.
func (u SettingsUpdate) Validate() error {
	if u.Volume != nil {
		if _, err := ParseVolume(*u.Volume); err != nil {
			return err
		}
	}
	return nil
}

// Empty reports whether the update changes nothing.
func (u SettingsUpdate) Empty() bool {
	return u.FajrEnabled == nil && u.DhuhrEnabled == nil && u.AsrEnabled == nil &&
		u.MaghribEnabled == nil && u.IshaEnabled == nil && u.AdhanAutoPlay == nil && u.Volume == nil
}

// Apply returns s with the non-nil fields of u written over it.
func (u SettingsUpdate) Apply(s NotificationSettings) NotificationSettings {
	if u.FajrEnabled != nil {
		s.FajrEnabled = *u.FajrEnabled
	}
	if u.DhuhrEnabled != nil {
		s.DhuhrEnabled = *u.DhuhrEnabled
	}
	if u.AsrEnabled != nil {
		s.AsrEnabled = *u.AsrEnabled
	}
	if u.MaghribEnabled != nil {
		s.MaghribEnabled = *u.MaghribEnabled
	}
	if u.IshaEnabled != nil {
		s.IshaEnabled = *u.IshaEnabled
	}
	if u.AdhanAutoPlay != nil {
		s.AdhanAutoPlay = *u.AdhanAutoPlay
	}
	if u.Volume != nil {
		s.Volume = *u.Volume
	}
	return s
}
