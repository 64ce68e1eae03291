package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat12h(t *testing.T) {
	assert.Equal(t, "5:42 PM", Format12h("17:42"))
	assert.Equal(t, "5:45 AM", Format12h("5:45"))
	assert.Equal(t, "12:15 PM", Format12h("12:15"))
	assert.Equal(t, "12:05 AM", Format12h("0:05"))
	assert.Equal(t, "soon", Format12h("soon"))
}

func TestCountdown(t *testing.T) {
	assert.Equal(t, "in 7m", Countdown(7))
	assert.Equal(t, "in 2h 5m", Countdown(125))
	assert.Equal(t, "in 1h 0m", Countdown(60))
}

func TestUpcomingForDisplay(t *testing.T) {
	r := NewRecord("2026-10-15", FallbackTimes, DefaultLocation)

	up, ok := UpcomingForDisplay(r, time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, Asr, up.Key)
	assert.Equal(t, 28, up.MinutesLeft)
	assert.Equal(t, "in 28m", up.Countdown)
	assert.False(t, up.Tomorrow)

	// exactly at Asr the display moves on to Maghrib
	up, ok = UpcomingForDisplay(r, time.Date(2026, 10, 15, 15, 28, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, Maghrib, up.Key)

	up, ok = UpcomingForDisplay(r, time.Date(2026, 10, 15, 21, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, Fajr, up.Key)
	assert.True(t, up.Tomorrow)
	assert.Equal(t, 3*60+5*60+45, up.MinutesLeft)
}

func TestNewAthanPageData(t *testing.T) {
	r := NewRecord("2026-10-15", FallbackTimes, DefaultLocation)
	s := DefaultNotificationSettings(DefaultUserID)

	data := NewAthanPageData(r, &s, time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC))

	assert.Equal(t, "BEIRUT", data.City)
	assert.Equal(t, "OCTOBER 15, 2026", data.Date)
	require.Len(t, data.Prayers, 5)
	assert.Equal(t, Prayer{Key: Fajr, Name: "FAJR", Arabic: Fajr.Arabic(), Time: "05:45", Period: "AM", Enabled: true}, data.Prayers[0])
	assert.Equal(t, "07:15", data.Prayers[4].Time)
	assert.Equal(t, "PM", data.Prayers[4].Period)
	assert.True(t, data.Prayers[2].Next)
	require.NotNil(t, data.Upcoming)
	assert.Equal(t, Asr, data.Upcoming.Key)
}
