package usecase

import (
	"time"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

// DayLabels configures the day bucket labels
type DayLabels struct {
	Today      string
	Yesterday  string
	DateLayout string // time layout for older days
}

// DefaultDayLabels renders older days like "05 Mar 2026"
var DefaultDayLabels = DayLabels{
	Today:      "Today",
	Yesterday:  "Yesterday",
	DateLayout: "02 Jan 2006",
}

// GroupByDay partitions an ordered timeline into calendar-day buckets relative to now.
// Calendar dates are taken in now's location. Buckets keep first-seen order and
// items keep their input order inside a bucket.
func GroupByDay(items []domain.TimelineItem, now time.Time, labels DayLabels) []domain.DayGroup {
	labels = labels.withDefaults()
	loc := now.Location()
	yesterday := now.AddDate(0, 0, -1)

	var groups []domain.DayGroup
	index := make(map[string]int)

	for _, item := range items {
		t := item.SortTime().In(loc)

		var label string
		switch {
		case sameDate(t, now):
			label = labels.Today
		case sameDate(t, yesterday):
			label = labels.Yesterday
		default:
			label = t.Format(labels.DateLayout)
		}

		idx, ok := index[label]
		if !ok {
			idx = len(groups)
			index[label] = idx
			groups = append(groups, domain.DayGroup{Label: label})
		}
		groups[idx].Items = append(groups[idx].Items, item)
	}
	return groups
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (l DayLabels) withDefaults() DayLabels {
	if l.Today == "" {
		l.Today = DefaultDayLabels.Today
	}
	if l.Yesterday == "" {
		l.Yesterday = DefaultDayLabels.Yesterday
	}
	if l.DateLayout == "" {
		l.DateLayout = DefaultDayLabels.DateLayout
	}
	return l
}
