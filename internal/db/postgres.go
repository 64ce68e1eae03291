package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

type pgStore struct {
	db *sqlx.DB
}

// compile-time check that pgStore implements Store
var _ Store = (*pgStore)(nil)

// NewStore returns a Postgres-backed Store. A nil conn falls back to DB.
func NewStore(conn *sqlx.DB) Store {
	if conn == nil {
		conn = DB
	}
	return &pgStore{db: conn}
}

const recordColumns = `id, date, fajr, dhuhr, asr, maghrib, isha, location, scraped_at`

const settingsColumns = `id, user_id, fajr_enabled, dhuhr_enabled, asr_enabled,
	maghrib_enabled, isha_enabled, adhan_auto_play, volume`

func (s *pgStore) GetRecordByDate(ctx context.Context, date string) (model.PrayerTimeRecord, error) {
	var record model.PrayerTimeRecord
	err := s.db.GetContext(ctx, &record, `
		SELECT `+recordColumns+`
		FROM prayer_times
		WHERE date = $1
		`, date)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PrayerTimeRecord{}, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("date", date).Msg("failed to get prayer times by date")
		return model.PrayerTimeRecord{}, fmt.Errorf("get prayer times for %s: %w", date, err)
	}
	return record, nil
}

func (s *pgStore) GetLatestRecord(ctx context.Context) (model.PrayerTimeRecord, error) {
	var record model.PrayerTimeRecord
	err := s.db.GetContext(ctx, &record, `
		SELECT `+recordColumns+`
		FROM prayer_times
		ORDER BY date DESC
		LIMIT 1
		`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PrayerTimeRecord{}, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to get latest prayer times")
		return model.PrayerTimeRecord{}, fmt.Errorf("get latest prayer times: %w", err)
	}
	return record, nil
}

// UpsertRecord writes record under its date, replacing the times of an
// existing row while keeping that row's id.
func (s *pgStore) UpsertRecord(ctx context.Context, record model.PrayerTimeRecord) (model.PrayerTimeRecord, error) {
	if err := record.Validate(); err != nil {
		return model.PrayerTimeRecord{}, err
	}

	var saved model.PrayerTimeRecord
	q := `
	INSERT INTO prayer_times (id, date, fajr, dhuhr, asr, maghrib, isha, location, scraped_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	ON CONFLICT (date) DO UPDATE
	SET fajr = EXCLUDED.fajr,
		dhuhr = EXCLUDED.dhuhr,
		asr = EXCLUDED.asr,
		maghrib = EXCLUDED.maghrib,
		isha = EXCLUDED.isha,
		location = EXCLUDED.location,
		scraped_at = now()
	RETURNING ` + recordColumns + `;`
	err := s.db.GetContext(ctx, &saved, q,
		uuid.NewString(), record.Date,
		record.Fajr, record.Dhuhr, record.Asr, record.Maghrib, record.Isha,
		record.Location,
	)
	if err != nil {
		log.Error().Err(err).Str("date", record.Date).Msg("failed to upsert prayer times")
		return model.PrayerTimeRecord{}, fmt.Errorf("upsert prayer times for %s: %w", record.Date, err)
	}
	return saved, nil
}

// GetSettings returns the settings of userID, inserting the defaults first
// when the profile has none yet.
func (s *pgStore) GetSettings(ctx context.Context, userID string) (model.NotificationSettings, error) {
	var settings model.NotificationSettings
	err := s.db.GetContext(ctx, &settings, `
		SELECT `+settingsColumns+`
		FROM notification_settings
		WHERE user_id = $1
		`, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to get notification settings")
		return model.NotificationSettings{}, fmt.Errorf("get notification settings: %w", err)
	}

	defaults := model.DefaultNotificationSettings(userID)
	q := `
	INSERT INTO notification_settings (` + settingsColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
	RETURNING ` + settingsColumns + `;`
	err = s.db.GetContext(ctx, &settings, q,
		uuid.NewString(), userID,
		defaults.FajrEnabled, defaults.DhuhrEnabled, defaults.AsrEnabled,
		defaults.MaghribEnabled, defaults.IshaEnabled,
		defaults.AdhanAutoPlay, defaults.Volume,
	)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to create default notification settings")
		return model.NotificationSettings{}, fmt.Errorf("create notification settings: %w", err)
	}
	log.Info().Str("user_id", userID).Msg("created default notification settings")
	return settings, nil
}

// UpsertSettings writes only the fields set in update, in one statement, so
// concurrent partial updates of different fields all survive.
func (s *pgStore) UpsertSettings(ctx context.Context, userID string, update model.SettingsUpdate) (model.NotificationSettings, error) {
	if err := update.Validate(); err != nil {
		return model.NotificationSettings{}, err
	}

	// make sure the row exists
	if _, err := s.GetSettings(ctx, userID); err != nil {
		return model.NotificationSettings{}, err
	}

	var saved model.NotificationSettings
	err := s.db.GetContext(ctx, &saved, `
		UPDATE notification_settings
		SET fajr_enabled = COALESCE($2::boolean, fajr_enabled),
			dhuhr_enabled = COALESCE($3::boolean, dhuhr_enabled),
			asr_enabled = COALESCE($4::boolean, asr_enabled),
			maghrib_enabled = COALESCE($5::boolean, maghrib_enabled),
			isha_enabled = COALESCE($6::boolean, isha_enabled),
			adhan_auto_play = COALESCE($7::boolean, adhan_auto_play),
			volume = COALESCE($8::text, volume)
		WHERE user_id = $1
		RETURNING `+settingsColumns,
		userID,
		update.FajrEnabled, update.DhuhrEnabled, update.AsrEnabled,
		update.MaghribEnabled, update.IshaEnabled,
		update.AdhanAutoPlay, update.Volume,
	)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to update notification settings")
		return model.NotificationSettings{}, fmt.Errorf("update notification settings: %w", err)
	}
	return saved, nil
}
