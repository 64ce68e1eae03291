package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultNotificationSettings(t *testing.T) {
	s := DefaultNotificationSettings(DefaultUserID)

	assert.True(t, s.Enabled(Fajr))
	assert.False(t, s.Enabled(Dhuhr))
	assert.True(t, s.Enabled(Asr))
	assert.True(t, s.Enabled(Maghrib))
	assert.False(t, s.Enabled(Isha))
	assert.True(t, s.AdhanAutoPlay)
	assert.Equal(t, "80", s.Volume)
	assert.Equal(t, 80, s.VolumeLevel())
	assert.True(t, s.AnyEnabled())
}

func TestSettingsUpdateApply(t *testing.T) {
	on, off, vol := true, false, "35"
	u := SettingsUpdate{DhuhrEnabled: &on, FajrEnabled: &off, Volume: &vol}

	got := u.Apply(DefaultNotificationSettings(DefaultUserID))

	assert.False(t, got.FajrEnabled)
	assert.True(t, got.DhuhrEnabled)
	assert.True(t, got.AsrEnabled, "untouched fields keep their value")
	assert.Equal(t, "35", got.Volume)
	assert.False(t, u.Empty())
	assert.True(t, SettingsUpdate{}.Empty())
}

func TestSettingsUpdateValidate(t *testing.T) {
	for _, v := range []string{"0", "100", "55"} {
		v := v
		assert.NoError(t, SettingsUpdate{Volume: &v}.Validate())
	}
	for _, v := range []string{"-1", "101", "loud", ""} {
		v := v
		assert.ErrorIs(t, SettingsUpdate{Volume: &v}.Validate(), ErrInvalidVolume)
	}
}

func TestAllDisabled(t *testing.T) {
	s := NotificationSettings{UserID: DefaultUserID, Volume: "bogus"}
	assert.False(t, s.AnyEnabled())
	assert.Equal(t, 80, s.VolumeLevel())
}
