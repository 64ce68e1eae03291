// exposes a Store interface that is passed to API handlers and schedulers
package db

import (
	"context"
	"errors"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Store interface {
	// prayer time records, one per calendar date
	GetRecordByDate(ctx context.Context, date string) (model.PrayerTimeRecord, error)
	GetLatestRecord(ctx context.Context) (model.PrayerTimeRecord, error)
	UpsertRecord(ctx context.Context, record model.PrayerTimeRecord) (model.PrayerTimeRecord, error)

	// notification settings, created with defaults on first read
	GetSettings(ctx context.Context, userID string) (model.NotificationSettings, error)
	UpsertSettings(ctx context.Context, userID string, update model.SettingsUpdate) (model.NotificationSettings, error)
}
