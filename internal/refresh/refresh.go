// Package refresh re-scrapes prayer times once a day and persists them.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/clock"
	"github.com/Nixie-Tech-LLC/athan/internal/db"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/scraper"
)

const (
	DefaultHour = 6
	Interval    = 24 * time.Hour
	runTimeout  = time.Minute
)

type Scraper interface {
	Scrape(ctx context.Context) scraper.Result
}

// Invalidator drops cached copies of a date's record.
type Invalidator interface {
	Invalidate(ctx context.Context, date string)
}

// Listener is told about every record a refresh persisted.
type Listener func(record model.PrayerTimeRecord)

type Scheduler struct {
	scraper Scraper
	store   db.Store
	cache   Invalidator
	clock   clock.Clock
	hour    int

	mu        sync.Mutex
	listeners []Listener
	timer     clock.Timer
	nextAt    time.Time
	started   bool
	runMu     sync.Mutex
}

type Option func(*Scheduler)

// WithHour sets the local hour of day the daily refresh runs at.
func WithHour(hour int) Option {
	return func(s *Scheduler) {
		if hour >= 0 && hour < 24 {
			s.hour = hour
		}
	}
}

func WithCache(cache Invalidator) Option {
	return func(s *Scheduler) { s.cache = cache }
}

func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) { s.clock = clk }
}

func New(sc Scraper, store db.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		scraper: sc,
		store:   store,
		clock:   clock.New(nil),
		hour:    DefaultHour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextRun returns the first hour:00 strictly after now, in now's location.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return next
}

// OnRefresh registers l to receive each persisted record.
func (s *Scheduler) OnRefresh(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start arms the daily refresh. The first run happens at the next refresh
// hour, later runs every Interval after it. Cancelling ctx stops it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	first := NextRun(s.clock.Now(), s.hour)
	s.armLocked(ctx, first)
	s.mu.Unlock()

	log.Info().Time("first_run", first).Msg("daily prayer time refresh scheduled")

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.started = false
		log.Info().Msg("daily prayer time refresh stopped")
	}()
}

// NextRunAt returns when the armed refresh fires.
func (s *Scheduler) NextRunAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextAt, s.timer != nil
}

func (s *Scheduler) armLocked(ctx context.Context, at time.Time) {
	s.nextAt = at
	s.timer = s.clock.AfterFunc(at.Sub(s.clock.Now()), func() {
		if ctx.Err() != nil {
			return
		}

		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		if _, err := s.RunOnce(runCtx); err != nil {
			log.Error().Err(err).Msg("scheduled prayer time refresh failed, retrying at next interval")
		}
		cancel()

		s.mu.Lock()
		defer s.mu.Unlock()
		if ctx.Err() != nil || !s.started {
			return
		}
		s.armLocked(ctx, at.Add(Interval))
	})
}

// RunOnce scrapes, persists and announces one record. Scraping never
// fails; a persistence error is returned and nothing is announced.
func (s *Scheduler) RunOnce(ctx context.Context) (model.PrayerTimeRecord, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := s.scraper.Scrape(ctx)

	saved, err := s.store.UpsertRecord(ctx, res.Record)
	if err != nil {
		log.Error().Err(err).Str("date", res.Record.Date).Msg("failed to persist refreshed prayer times")
		return model.PrayerTimeRecord{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, saved.Date)
	}

	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l(saved)
	}

	log.Info().
		Str("date", saved.Date).
		Str("source", string(res.Source)).
		Int("missing", len(res.Missing)).
		Msg("prayer times refreshed")
	return saved, nil
}
