package model

import (
	"fmt"
	"strings"
	"time"
)

// Prayer is one row of the athan page.
type Prayer struct {
	Key     PrayerKey // "fajr", "dhuhr", …
	Name    string    // "FAJR", "DHUHR", …
	Arabic  string
	Time    string // "05:12"
	Period  string // "AM" or "PM"
	Enabled bool
	Next    bool
}

type AthanPageData struct {
	City     string
	Date     string // "AUGUST 5, 2025"
	Prayers  []Prayer
	Upcoming *Upcoming
}

// Upcoming is the next prayer as shown to a person looking at the clock,
// independent of which alerts are switched on.
type Upcoming struct {
	Key           PrayerKey `json:"key"`
	Name          string    `json:"name"`
	Time          string    `json:"time"`
	FormattedTime string    `json:"formattedTime"`
	Tomorrow      bool      `json:"tomorrow"`
	MinutesLeft   int       `json:"minutesLeft"`
	Countdown     string    `json:"countdown"`
}

// Format12h renders "17:42" as "5:42 PM". Unparseable input is returned as is.
func Format12h(clock string) string {
	hm, period, err := split12h(clock)
	if err != nil {
		return clock
	}
	return hm + " " + period
}

// split12h converts "17:30" → ("5:30", "PM").
func split12h(clock string) (string, string, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return "", "", err
	}
	h, m := minutes/60, minutes%60
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	display := h
	switch {
	case h > 12:
		display = h - 12
	case h == 0:
		display = 12
	}
	return fmt.Sprintf("%d:%02d", display, m), period, nil
}

// Countdown renders a remaining duration in minutes as "in 2h 5m" or "in 7m".
func Countdown(minutes int) string {
	h, m := minutes/60, minutes%60
	if h > 0 {
		return fmt.Sprintf("in %dh %dm", h, m)
	}
	return fmt.Sprintf("in %dm", m)
}

// UpcomingForDisplay picks the first prayer strictly after now's minute of
// day. When today's prayers are over it rolls over to tomorrow's Fajr,
// assuming tomorrow's times match today's. Alert scheduling never rolls
// over; this is only for display.
func UpcomingForDisplay(r PrayerTimeRecord, now time.Time) (Upcoming, bool) {
	current := now.Hour()*60 + now.Minute()

	first := -1
	var firstKey PrayerKey
	for _, k := range PrayerKeys {
		minutes, err := ParseClock(r.Time(k))
		if err != nil {
			continue
		}
		if first < 0 {
			first, firstKey = minutes, k
		}
		if minutes > current {
			return newUpcoming(r, k, minutes-current, false), true
		}
	}
	if first < 0 {
		return Upcoming{}, false
	}
	return newUpcoming(r, firstKey, 24*60-current+first, true), true
}

func newUpcoming(r PrayerTimeRecord, k PrayerKey, left int, tomorrow bool) Upcoming {
	return Upcoming{
		Key:           k,
		Name:          k.Name(),
		Time:          r.Time(k),
		FormattedTime: Format12h(r.Time(k)),
		Tomorrow:      tomorrow,
		MinutesLeft:   left,
		Countdown:     Countdown(left),
	}
}

// NewAthanPageData lays out a record for the athan screen template.
func NewAthanPageData(r PrayerTimeRecord, s *NotificationSettings, now time.Time) AthanPageData {
	data := AthanPageData{
		City: strings.ToUpper(cityOf(r.Location)),
		Date: strings.ToUpper(now.Format("January 2, 2006")),
	}

	upcoming, ok := UpcomingForDisplay(r, now)
	if ok {
		data.Upcoming = &upcoming
	}

	data.Prayers = make([]Prayer, 0, len(PrayerKeys))
	for _, k := range PrayerKeys {
		hm, period, err := split12h(r.Time(k))
		if err != nil {
			hm, period = r.Time(k), ""
		}
		if len(hm) == 4 {
			hm = "0" + hm
		}
		data.Prayers = append(data.Prayers, Prayer{
			Key:     k,
			Name:    strings.ToUpper(k.Name()),
			Arabic:  k.Arabic(),
			Time:    hm,
			Period:  period,
			Enabled: s != nil && s.Enabled(k),
			Next:    ok && upcoming.Key == k,
		})
	}
	return data
}

// cityOf keeps the part of "Beirut, Lebanon" before the first comma.
func cityOf(location string) string {
	city, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(city)
}
