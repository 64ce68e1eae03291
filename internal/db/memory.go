package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// MemoryStore keeps records and settings in process memory. It is used
// when no DATABASE_URL is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]model.PrayerTimeRecord
	settings map[string]model.NotificationSettings
	now      func() time.Time

	// FailWrites makes every write return this error.
	FailWrites error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]model.PrayerTimeRecord),
		settings: make(map[string]model.NotificationSettings),
		now:      time.Now,
	}
}

func (m *MemoryStore) GetRecordByDate(_ context.Context, date string) (model.PrayerTimeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[date]
	if !ok {
		return model.PrayerTimeRecord{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) GetLatestRecord(_ context.Context) (model.PrayerTimeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return model.PrayerTimeRecord{}, ErrNotFound
	}
	dates := make([]string, 0, len(m.records))
	for d := range m.records {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return m.records[dates[len(dates)-1]], nil
}

func (m *MemoryStore) UpsertRecord(_ context.Context, record model.PrayerTimeRecord) (model.PrayerTimeRecord, error) {
	if err := record.Validate(); err != nil {
		return model.PrayerTimeRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return model.PrayerTimeRecord{}, m.FailWrites
	}

	if existing, ok := m.records[record.Date]; ok {
		record.ID = existing.ID
	} else {
		record.ID = uuid.NewString()
	}
	record.ScrapedAt = m.now()
	m.records[record.Date] = record
	return record, nil
}

func (m *MemoryStore) GetSettings(_ context.Context, userID string) (model.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsLocked(userID), nil
}

func (m *MemoryStore) UpsertSettings(_ context.Context, userID string, update model.SettingsUpdate) (model.NotificationSettings, error) {
	if err := update.Validate(); err != nil {
		return model.NotificationSettings{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return model.NotificationSettings{}, m.FailWrites
	}

	next := update.Apply(m.settingsLocked(userID))
	m.settings[userID] = next
	return next, nil
}

func (m *MemoryStore) settingsLocked(userID string) model.NotificationSettings {
	s, ok := m.settings[userID]
	if !ok {
		s = model.DefaultNotificationSettings(userID)
		s.ID = uuid.NewString()
		m.settings[userID] = s
	}
	return s
}
