// Package scraper turns the prayer-time page of the source site into a
// complete PrayerTimeRecord.
//
// The source markup is not under our control and changes without notice,
// so extraction is heuristic: prayer names are located by their Arabic
// spelling and the nearest H:MM figure is taken as the time. Anything that
// cannot be resolved is filled from model.FallbackTimes by the Scraper.
package scraper

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/rs/zerolog/log"
)

type arabicName struct {
	name string
	key  model.PrayerKey
}

// arabicNames maps the spellings used on the source site to canonical
// keys. Definite forms come first so they are tried before the bare ones.
var arabicNames = []arabicName{
	{"الفجر", model.Fajr},
	{"الظهر", model.Dhuhr},
	{"العصر", model.Asr},
	{"المغرب", model.Maghrib},
	{"العشاء", model.Isha},
	{"فجر", model.Fajr},
	{"ظهر", model.Dhuhr},
	{"عصر", model.Asr},
	{"مغرب", model.Maghrib},
	{"عشاء", model.Isha},
}

// Extract finds prayer times in raw HTML. It returns only the keys it could
// resolve, possibly none, and never fails: malformed or empty markup simply
// yields an empty set.
func Extract(raw string) (times model.PrayerTimes) {
	times = model.PrayerTimes{}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("prayer time extraction aborted")
			times = model.PrayerTimes{}
		}
	}()

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return times
	}

	walkNames(doc, times)
	if len(times) < len(model.PrayerKeys) {
		walkTables(doc, times)
	}
	return times
}

// walkNames visits every text node in document order. A text node naming a
// prayer claims the first time found in its element, or failing that in the
// element's siblings under the same parent.
func walkNames(n *html.Node, times model.PrayerTimes) {
	if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
		return
	}
	if n.Type == html.TextNode && n.Parent != nil {
		for _, key := range namedKeys(n.Data) {
			if _, done := times[key]; done {
				continue
			}
			if t, ok := timeNear(n.Parent); ok {
				times[key] = t
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNames(c, times)
	}
}

// timeNear searches el's own text, then each element under el's parent in
// document order.
func timeNear(el *html.Node) (string, bool) {
	if t, ok := findClock(collectText(el)); ok {
		return t, true
	}
	parent := el.Parent
	if parent == nil {
		return "", false
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if t, ok := findClock(collectText(c)); ok {
			return t, true
		}
	}
	return "", false
}

// walkTables reads two-column layouts: prayer name in the first cell, time
// in the second. Only keys still missing are filled.
func walkTables(doc *html.Node, times model.PrayerTimes) {
	for _, row := range findAll(doc, atom.Tr) {
		cells := findAll(row, atom.Td)
		if len(cells) < 2 {
			continue
		}
		name := strings.TrimSpace(collectText(cells[0]))
		t, ok := findClock(strings.TrimSpace(collectText(cells[1])))
		if !ok {
			continue
		}
		for _, key := range namedKeys(name) {
			if _, done := times[key]; !done {
				times[key] = t
			}
		}
	}
}

// namedKeys returns the distinct keys whose Arabic name occurs in text, in
// mapping order.
func namedKeys(text string) []model.PrayerKey {
	var out []model.PrayerKey
	seen := make(map[model.PrayerKey]bool, len(model.PrayerKeys))
	for _, an := range arabicNames {
		if seen[an.key] || !strings.Contains(text, an.name) {
			continue
		}
		seen[an.key] = true
		out = append(out, an.key)
	}
	return out
}

func findClock(text string) (string, bool) {
	m := model.ClockPattern.FindString(text)
	return m, m != ""
}

// collectText concatenates all text beneath n, skipping scripts and styles.
func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// findAll returns the elements beneath root with the given tag, in document order.
func findAll(root *html.Node, tag atom.Atom) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == tag {
				results = append(results, c)
			}
			walk(c)
		}
	}
	walk(root)
	return results
}
