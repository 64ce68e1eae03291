// Package alert arms a timer for the next enabled prayer of the day and
// fires the notification and adhan side effects when it elapses.
//
// One Scheduler exists per process. It holds at most one armed timer; every
// input change clears that timer before a new target is computed, and a
// generation counter makes sure a callback that lost the race with Stop
// can never fire against superseded inputs.
package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/clock"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

type State int

const (
	StateIdle State = iota
	StateComputing
	StateArmed
	StateFiring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputing:
		return "computing"
	case StateArmed:
		return "armed"
	case StateFiring:
		return "firing"
	}
	return "unknown"
}

// ScheduledAlert is the next prayer alert. It is derived, never stored.
type ScheduledAlert struct {
	Prayer  model.PrayerKey `json:"prayer"`
	Name    string          `json:"name"`
	Time    string          `json:"time"`
	Minutes int             `json:"minutes"`
	At      time.Time       `json:"at"`
}

// CancelFunc disarms whatever the Run that returned it armed.
type CancelFunc func()

const sideEffectTimeout = 10 * time.Second

type Scheduler struct {
	notifier Notifier
	audio    AudioPlayer
	clock    clock.Clock

	mu       sync.Mutex
	record   *model.PrayerTimeRecord
	settings *model.NotificationSettings
	state    State
	timer    clock.Timer
	armed    *ScheduledAlert
	gen      uint64 // bumped whenever inputs change or the timer is cleared
	run      uint64 // bumped by Run only
	fired    firedSet
}

// firedSet remembers which prayers already fired on a date, so a prayer
// whose minute has not yet passed is not picked again right after firing.
type firedSet struct {
	date string
	keys map[model.PrayerKey]bool
}

func (f *firedSet) add(date string, key model.PrayerKey) {
	if f.date != date || f.keys == nil {
		f.date = date
		f.keys = make(map[model.PrayerKey]bool, len(model.PrayerKeys))
	}
	f.keys[key] = true
}

func (f *firedSet) has(date string, key model.PrayerKey) bool {
	return f.date == date && f.keys[key]
}

func NewScheduler(notifier Notifier, audio AudioPlayer, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New(nil)
	}
	return &Scheduler{notifier: notifier, audio: audio, clock: clk}
}

// NextAlert returns the earliest enabled prayer whose minute of day has not
// passed yet. Prayers earlier than now's minute are skipped, not moved to
// tomorrow; when none remain it reports false. Ties go to the prayer that
// comes first in model.PrayerKeys.
func NextAlert(record model.PrayerTimeRecord, settings model.NotificationSettings, now time.Time) (ScheduledAlert, bool) {
	return nextAlert(record, settings, now, nil)
}

func nextAlert(record model.PrayerTimeRecord, settings model.NotificationSettings, now time.Time, skip func(model.PrayerKey) bool) (ScheduledAlert, bool) {
	current := now.Hour()*60 + now.Minute()

	candidates := make([]ScheduledAlert, 0, len(model.PrayerKeys))
	for _, k := range model.PrayerKeys {
		if !settings.Enabled(k) || (skip != nil && skip(k)) {
			continue
		}
		minutes, err := model.ParseClock(record.Time(k))
		if err != nil {
			log.Warn().Err(err).Str("prayer", string(k)).Str("date", record.Date).Msg("skipping unparseable prayer time")
			continue
		}
		if minutes < current {
			continue
		}
		candidates = append(candidates, ScheduledAlert{
			Prayer:  k,
			Name:    k.Name(),
			Time:    record.Time(k),
			Minutes: minutes,
			At:      time.Date(now.Year(), now.Month(), now.Day(), minutes/60, minutes%60, 0, 0, now.Location()),
		})
	}
	if len(candidates) == 0 {
		return ScheduledAlert{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Minutes < candidates[j].Minutes
	})
	return candidates[0], true
}

// Run installs a record and settings, either of which may be nil, and arms
// the next alert. The returned CancelFunc disarms it unless a later Run has
// taken over in the meantime.
func (s *Scheduler) Run(record *model.PrayerTimeRecord, settings *model.NotificationSettings) CancelFunc {
	s.mu.Lock()
	s.run++
	run := s.run
	s.record = copyRecord(record)
	s.settings = copySettings(settings)
	s.recomputeLocked()
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.run != run {
			return
		}
		s.clearLocked()
		s.state = StateIdle
	}
}

// UpdateRecord replaces the record and re-arms.
func (s *Scheduler) UpdateRecord(record *model.PrayerTimeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = copyRecord(record)
	s.recomputeLocked()
}

// UpdateSettings replaces the settings and re-arms.
func (s *Scheduler) UpdateSettings(settings *model.NotificationSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = copySettings(settings)
	s.recomputeLocked()
}

// Stop disarms the scheduler and forgets its inputs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.record, s.settings = nil, nil
	s.state = StateIdle
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Armed returns the alert currently waiting to fire.
func (s *Scheduler) Armed() (ScheduledAlert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed == nil {
		return ScheduledAlert{}, false
	}
	return *s.armed, true
}

// StopAudio silences an adhan that is currently playing.
func (s *Scheduler) StopAudio(ctx context.Context) error {
	if s.audio == nil {
		return nil
	}
	return s.audio.Stop(ctx)
}

// clearLocked drops the armed timer. Bumping gen invalidates a callback
// that already started and is waiting on the lock.
func (s *Scheduler) clearLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = nil
	s.gen++
}

func (s *Scheduler) recomputeLocked() {
	s.clearLocked()
	s.state = StateComputing

	if s.record == nil || s.settings == nil {
		s.state = StateIdle
		log.Debug().Msg("prayer alerts idle: record or settings unavailable")
		return
	}

	now := s.clock.Now()
	today := model.DateOf(now)
	next, ok := nextAlert(*s.record, *s.settings, now, func(k model.PrayerKey) bool {
		return s.fired.has(today, k)
	})
	if !ok {
		s.state = StateIdle
		log.Info().Str("date", today).Msg("no enabled prayers remain today, alerts idle")
		return
	}

	delay := next.At.Sub(now)
	if delay < 0 {
		delay = 0
	}
	gen := s.gen
	s.armed = &next
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
	s.state = StateArmed

	log.Info().
		Str("prayer", string(next.Prayer)).
		Str("time", next.Time).
		Time("at", next.At).
		Dur("in", delay).
		Msg("prayer alert armed")
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.armed == nil {
		s.mu.Unlock()
		return
	}
	alert := *s.armed
	settings := *s.settings
	s.timer = nil
	s.armed = nil
	s.state = StateFiring
	s.fired.add(model.DateOf(alert.At), alert.Prayer)
	s.mu.Unlock()

	s.sideEffects(alert, settings)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// inputs changed while firing; that change already re-armed
		return
	}
	s.recomputeLocked()
}

func (s *Scheduler) sideEffects(alert ScheduledAlert, settings model.NotificationSettings) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	log.Info().Str("prayer", string(alert.Prayer)).Str("time", alert.Time).Msg("prayer time reached")

	if s.notifier != nil {
		if perm := s.notifier.Permission(); perm == PermissionGranted {
			if err := s.notifier.Notify(ctx, PrayerNotification(alert.Prayer)); err != nil {
				log.Error().Err(err).Str("prayer", string(alert.Prayer)).Msg("failed to send prayer notification")
			}
		} else {
			log.Debug().Str("permission", string(perm)).Msg("notification permission not granted")
		}
	}

	if settings.AdhanAutoPlay && s.audio != nil {
		if err := s.audio.Play(ctx, alert.Name, settings.VolumeLevel()); err != nil {
			log.Error().Err(err).Str("prayer", string(alert.Prayer)).Msg("failed to play adhan")
		}
	}
}

func copyRecord(r *model.PrayerTimeRecord) *model.PrayerTimeRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func copySettings(s *model.NotificationSettings) *model.NotificationSettings {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
