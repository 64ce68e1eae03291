package scraper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// Source describes where the times of a scraped record came from.
type Source string

const (
	SourceScraped  Source = "scraped"  // all five extracted
	SourcePartial  Source = "partial"  // some filled from fallback
	SourceFallback Source = "fallback" // fetch failed or nothing extracted
)

// Result is a scraped record plus how it was obtained.
type Result struct {
	Record  model.PrayerTimeRecord
	Source  Source
	Missing []model.PrayerKey
	Err     error // fetch error, when Source is fallback because of it
}

type Config struct {
	URL      string
	Location string
	// TimeZone dates records; nil means the server's local zone.
	TimeZone *time.Location
}

// Scraper fetches the source page and always produces a complete record.
type Scraper struct {
	fetcher Fetcher
	cfg     Config
	now     func() time.Time
}

func New(fetcher Fetcher, cfg Config) *Scraper {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Location == "" {
		cfg.Location = model.DefaultLocation
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.Local
	}
	return &Scraper{fetcher: fetcher, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source used to date records.
func (s *Scraper) WithClock(now func() time.Time) *Scraper {
	s.now = now
	return s
}

// ScrapePrayerTimes returns today's record. It never fails: fetch and
// extraction problems are logged and replaced with fallback times.
func (s *Scraper) ScrapePrayerTimes(ctx context.Context) model.PrayerTimeRecord {
	return s.Scrape(ctx).Record
}

// Scrape is ScrapePrayerTimes with the outcome details kept.
func (s *Scraper) Scrape(ctx context.Context) Result {
	date := model.DateOf(s.now().In(s.cfg.TimeZone))

	log.Info().Str("url", s.cfg.URL).Msg("scraping prayer times")
	body, err := s.fetcher.Fetch(ctx, s.cfg.URL)
	if err != nil {
		log.Error().Err(err).Str("url", s.cfg.URL).Msg("prayer time fetch failed, using fallback times")
		return Result{
			Record:  model.NewRecord(date, model.FallbackTimes, s.cfg.Location),
			Source:  SourceFallback,
			Missing: append([]model.PrayerKey(nil), model.PrayerKeys...),
			Err:     err,
		}
	}

	times := complete(Extract(body))
	record := model.NewRecord(date, times.resolved, s.cfg.Location)

	source := SourceScraped
	switch {
	case len(times.missing) == len(model.PrayerKeys):
		source = SourceFallback
	case len(times.missing) > 0:
		source = SourcePartial
	}
	if len(times.missing) > 0 {
		log.Warn().Strs("missing", keyStrings(times.missing)).Msg("missing prayer times, substituted fallback")
	}

	log.Info().
		Str("date", record.Date).
		Str("fajr", record.Fajr).
		Str("dhuhr", record.Dhuhr).
		Str("asr", record.Asr).
		Str("maghrib", record.Maghrib).
		Str("isha", record.Isha).
		Str("source", string(source)).
		Msg("scraped prayer times")

	return Result{Record: record, Source: source, Missing: times.missing}
}

type completed struct {
	resolved model.PrayerTimes
	missing  []model.PrayerKey
}

// complete fills every key that is absent or not a valid clock time.
func complete(extracted model.PrayerTimes) completed {
	out := completed{resolved: make(model.PrayerTimes, len(model.PrayerKeys))}
	for _, k := range model.PrayerKeys {
		t, ok := extracted[k]
		if ok {
			if _, err := model.ParseClock(t); err != nil {
				ok = false
			}
		}
		if !ok {
			out.missing = append(out.missing, k)
			t = model.FallbackTimes[k]
		}
		out.resolved[k] = t
	}
	return out
}

func keyStrings(keys []model.PrayerKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
