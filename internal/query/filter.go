package query

import (
	"time"

	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/pkg/schema"
)

// Date-range presets accepted from the UI.
const (
	PresetToday     = "today"
	PresetYesterday = "yesterday"
	PresetLast7Days = "last_7_days"
	PresetThisMonth = "this_month"
	PresetLastMonth = "last_month"
)

const dateLayout = "2006-01-02"

// Params is the raw filter parameter shape sent by the UI. Empty fields
// mean "no filter", never "filter on empty string".
type Params struct {
	Status     string `json:"status,omitempty"`
	DatePreset string `json:"date_preset,omitempty"`
	DateFrom   string `json:"date_from,omitempty"`
	DateTo     string `json:"date_to,omitempty"`
	Category   string `json:"category,omitempty"`
	Location   string `json:"location,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Search     string `json:"search,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Resolve translates raw UI filter parameters into the canonical query
// descriptor consumed by the store. Referentially transparent: the same
// params and the same now always produce the same descriptor. Date
// presets resolve against now in its own location, so "yesterday" is the
// full prior calendar day in the caller's timezone.
func Resolve(entityType schema.EntityType, raw Params, now time.Time) store.EntityFilter {
	filter := store.EntityFilter{
		Type:     entityType,
		Status:   raw.Status,
		Category: raw.Category,
		Location: raw.Location,
		Priority: schema.Priority(raw.Priority),
		Search:   raw.Search,
		Limit:    raw.Limit,
		Offset:   raw.Offset,
	}

	// An explicit date range wins over a preset. Dates are calendar days
	// in now's location; date_to is inclusive, so the bound is the start
	// of the following day.
	explicitFrom := parseDate(raw.DateFrom, now.Location())
	explicitTo := parseDate(raw.DateTo, now.Location())
	if explicitFrom != nil || explicitTo != nil {
		filter.CreatedFrom = explicitFrom
		if explicitTo != nil {
			next := explicitTo.AddDate(0, 0, 1)
			filter.CreatedTo = &next
		}
		return filter
	}

	if raw.DatePreset == "" {
		return filter
	}

	from, to := resolvePreset(raw.DatePreset, now)
	filter.CreatedFrom = from
	filter.CreatedTo = to
	return filter
}

// resolvePreset computes the half-open [from, to) bounds for a preset.
// Unrecognized presets fall back to today. A nil bound means unbounded.
func resolvePreset(preset string, now time.Time) (*time.Time, *time.Time) {
	today := startOfDay(now)

	switch preset {
	case PresetYesterday:
		from := today.AddDate(0, 0, -1)
		return &from, &today
	case PresetLast7Days:
		from := today.AddDate(0, 0, -6)
		return &from, nil
	case PresetThisMonth:
		from := startOfMonth(now)
		return &from, nil
	case PresetLastMonth:
		thisMonth := startOfMonth(now)
		from := thisMonth.AddDate(0, -1, 0)
		return &from, &thisMonth
	case PresetToday:
		return &today, nil
	default:
		return &today, nil
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func parseDate(raw string, loc *time.Location) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil
	}
	return &t
}
