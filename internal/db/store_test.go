package db

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

func record(date, fajr string) model.PrayerTimeRecord {
	r := model.NewRecord(date, model.FallbackTimes, model.DefaultLocation)
	r.Fajr = fajr
	return r
}

func boolPtr(b bool) *bool { return &b }
func strPtr(s string) *string { return &s }

// runStoreContract exercises behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("missing record", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRecordByDate(ctx, "2026-10-15")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetLatestRecord(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("upsert replaces by date", func(t *testing.T) {
		s := newStore(t)
		first, err := s.UpsertRecord(ctx, record("2026-10-15", "5:30"))
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		assert.False(t, first.ScrapedAt.IsZero())

		second, err := s.UpsertRecord(ctx, record("2026-10-15", "5:31"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		got, err := s.GetRecordByDate(ctx, "2026-10-15")
		require.NoError(t, err)
		assert.Equal(t, "5:31", got.Fajr)
		assert.Equal(t, "12:15", got.Dhuhr)
		assert.Equal(t, model.DefaultLocation, got.Location)
	})

	t.Run("latest record", func(t *testing.T) {
		s := newStore(t)
		for _, d := range []string{"2026-10-14", "2026-10-16", "2026-10-15"} {
			_, err := s.UpsertRecord(ctx, record(d, "5:30"))
			require.NoError(t, err)
		}
		latest, err := s.GetLatestRecord(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2026-10-16", latest.Date)
	})

	t.Run("invalid record rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertRecord(ctx, record("2026-10-15", "dawn"))
		assert.ErrorIs(t, err, model.ErrInvalidTime)
		_, err = s.UpsertRecord(ctx, record("15/10/2026", "5:30"))
		assert.ErrorIs(t, err, model.ErrInvalidDate)
	})

	t.Run("settings created lazily with defaults", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetSettings(ctx, model.DefaultUserID)
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)

		want := model.DefaultNotificationSettings(model.DefaultUserID)
		want.ID = got.ID
		assert.Equal(t, want, got)

		again, err := s.GetSettings(ctx, model.DefaultUserID)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	})

	t.Run("partial settings update", func(t *testing.T) {
		s := newStore(t)
		got, err := s.UpsertSettings(ctx, model.DefaultUserID, model.SettingsUpdate{
			IshaEnabled: boolPtr(true),
			Volume:      strPtr("35"),
		})
		require.NoError(t, err)
		assert.True(t, got.IshaEnabled)
		assert.True(t, got.FajrEnabled, "untouched fields keep their defaults")
		assert.False(t, got.DhuhrEnabled)
		assert.Equal(t, "35", got.Volume)

		read, err := s.GetSettings(ctx, model.DefaultUserID)
		require.NoError(t, err)
		assert.Equal(t, got, read)
	})

	t.Run("concurrent partial updates all land", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetSettings(ctx, model.DefaultUserID)
		require.NoError(t, err)

		updates := []model.SettingsUpdate{
			{FajrEnabled: boolPtr(false)},
			{DhuhrEnabled: boolPtr(true)},
			{IshaEnabled: boolPtr(true)},
			{AdhanAutoPlay: boolPtr(false)},
			{Volume: strPtr("55")},
		}
		var wg sync.WaitGroup
		for round := 0; round < 5; round++ {
			for _, u := range updates {
				wg.Add(1)
				go func(u model.SettingsUpdate) {
					defer wg.Done()
					_, err := s.UpsertSettings(ctx, model.DefaultUserID, u)
					assert.NoError(t, err)
				}(u)
			}
		}
		wg.Wait()

		got, err := s.GetSettings(ctx, model.DefaultUserID)
		require.NoError(t, err)
		assert.False(t, got.FajrEnabled)
		assert.True(t, got.DhuhrEnabled)
		assert.True(t, got.AsrEnabled)
		assert.True(t, got.MaghribEnabled)
		assert.True(t, got.IshaEnabled)
		assert.False(t, got.AdhanAutoPlay)
		assert.Equal(t, "55", got.Volume)
	})

	t.Run("invalid volume rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertSettings(ctx, model.DefaultUserID, model.SettingsUpdate{Volume: strPtr("101")})
		assert.ErrorIs(t, err, model.ErrInvalidVolume)

		read, err := s.GetSettings(ctx, model.DefaultUserID)
		require.NoError(t, err)
		assert.Equal(t, "80", read.Volume)
	})

	t.Run("profiles are separate", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertSettings(ctx, "kitchen", model.SettingsUpdate{FajrEnabled: boolPtr(false)})
		require.NoError(t, err)

		def, err := s.GetSettings(ctx, model.DefaultUserID)
		require.NoError(t, err)
		assert.True(t, def.FajrEnabled)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreFailWrites(t *testing.T) {
	s := NewMemoryStore()
	s.FailWrites = errors.New("disk full")

	_, err := s.UpsertRecord(context.Background(), record("2026-10-15", "5:30"))
	assert.EqualError(t, err, "disk full")

	_, err = s.UpsertSettings(context.Background(), model.DefaultUserID, model.SettingsUpdate{})
	assert.EqualError(t, err, "disk full")
}

func TestPostgresStore(t *testing.T) {
	store, err := InitTestDB("../../migrations")
	if err != nil {
		t.Skipf("postgres not available, skipping: %v", err)
	}
	t.Cleanup(func() { _ = DB.Close() })

	runStoreContract(t, func(t *testing.T) Store {
		_, err := DB.Exec(`TRUNCATE prayer_times, notification_settings`)
		require.NoError(t, err)
		return store
	})
}
