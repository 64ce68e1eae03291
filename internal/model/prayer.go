package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PrayerKey identifies one of the five daily prayers.
type PrayerKey string

const (
	Fajr    PrayerKey = "fajr"
	Dhuhr   PrayerKey = "dhuhr"
	Asr     PrayerKey = "asr"
	Maghrib PrayerKey = "maghrib"
	Isha    PrayerKey = "isha"
)

// PrayerKeys lists the canonical keys in the order prayers occur during the day.
// This order is also the tie-break order wherever two prayers share a time.
var PrayerKeys = []PrayerKey{Fajr, Dhuhr, Asr, Maghrib, Isha}

// DateLayout is the calendar-date format stored on every record.
const DateLayout = "2006-01-02"

var (
	ErrInvalidTime   = errors.New("invalid time of day")
	ErrInvalidDate   = errors.New("invalid record date")
	ErrInvalidVolume = errors.New("volume must be an integer between 0 and 100")
	ErrUnknownPrayer = errors.New("unknown prayer key")
)

// ClockPattern matches an H:MM or HH:MM time of day anywhere in a string.
var ClockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

var exactClock = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// Name returns the English display name ("Fajr", "Dhuhr", ...).
func (k PrayerKey) Name() string {
	switch k {
	case Fajr:
		return "Fajr"
	case Dhuhr:
		return "Dhuhr"
	case Asr:
		return "Asr"
	case Maghrib:
		return "Maghrib"
	case Isha:
		return "Isha"
	}
	return string(k)
}

// Arabic returns the label shown next to the English name.
func (k PrayerKey) Arabic() string {
	switch k {
	case Fajr:
		return "الصبح"
	case Dhuhr:
		return "الظهر"
	case Asr:
		return "العصر"
	case Maghrib:
		return "المغرب"
	case Isha:
		return "العشاء"
	}
	return ""
}

// Index returns the position of k in PrayerKeys, or -1.
func (k PrayerKey) Index() int {
	for i, key := range PrayerKeys {
		if key == k {
			return i
		}
	}
	return -1
}

func (k PrayerKey) Valid() bool { return k.Index() >= 0 }

// ParsePrayerKey accepts a key in any letter case.
func ParsePrayerKey(s string) (PrayerKey, error) {
	k := PrayerKey(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPrayer, s)
	}
	return k, nil
}

// PrayerTimes is a possibly partial set of resolved times keyed by prayer.
type PrayerTimes map[PrayerKey]string

// Missing returns the canonical keys that have no time, in canonical order.
func (p PrayerTimes) Missing() []PrayerKey {
	var out []PrayerKey
	for _, k := range PrayerKeys {
		if _, ok := p[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// FallbackTimes is the default schedule for the reference location, used
// for any prayer the scraper could not resolve.
var FallbackTimes = PrayerTimes{
	Fajr:    "5:45",
	Dhuhr:   "12:15",
	Asr:     "15:28",
	Maghrib: "17:42",
	Isha:    "19:15",
}

// DefaultLocation labels records scraped from the reference source.
const DefaultLocation = "Beirut, Lebanon"

// PrayerTimeRecord is one calendar day of prayer times.
type PrayerTimeRecord struct {
	ID        string    `db:"id"         json:"id"`
	Date      string    `db:"date"       json:"date"`
	Fajr      string    `db:"fajr"       json:"fajr"`
	Dhuhr     string    `db:"dhuhr"      json:"dhuhr"`
	Asr       string    `db:"asr"        json:"asr"`
	Maghrib   string    `db:"maghrib"    json:"maghrib"`
	Isha      string    `db:"isha"       json:"isha"`
	Location  string    `db:"location"   json:"location"`
	ScrapedAt time.Time `db:"scraped_at" json:"scrapedAt"`
}

// NewRecord builds a record for date from a complete set of times.
func NewRecord(date string, times PrayerTimes, location string) PrayerTimeRecord {
	return PrayerTimeRecord{
		Date:     date,
		Fajr:     times[Fajr],
		Dhuhr:    times[Dhuhr],
		Asr:      times[Asr],
		Maghrib:  times[Maghrib],
		Isha:     times[Isha],
		Location: location,
	}
}

// Time returns the time-of-day string stored for key.
func (r PrayerTimeRecord) Time(key PrayerKey) string {
	switch key {
	case Fajr:
		return r.Fajr
	case Dhuhr:
		return r.Dhuhr
	case Asr:
		return r.Asr
	case Maghrib:
		return r.Maghrib
	case Isha:
		return r.Isha
	}
	return ""
}

// Times returns the record's five times as a PrayerTimes set.
func (r PrayerTimeRecord) Times() PrayerTimes {
	out := make(PrayerTimes, len(PrayerKeys))
	for _, k := range PrayerKeys {
		out[k] = r.Time(k)
	}
	return out
}

// Validate checks the date format and that all five times look like H:MM.
func (r PrayerTimeRecord) Validate() error {
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, r.Date)
	}
	for _, k := range PrayerKeys {
		if !exactClock.MatchString(r.Time(k)) {
			return fmt.Errorf("%s: %w: %q", k, ErrInvalidTime, r.Time(k))
		}
	}
	return nil
}

// ParseClock converts "H:MM" or "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !exactClock.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, m, _ := strings.Cut(s, ":")
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	if hours > 23 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hours*60 + minutes, nil
}

// DateOf formats t as a record date in t's own location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}
