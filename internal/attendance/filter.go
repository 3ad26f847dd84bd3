package attendance

import (
	"strings"

	"attendclient/internal/api"
)

// Filter narrows a fetched record list for display. All fields are optional;
// filtering is purely local and never changes what the backend holds.
type Filter struct {
	Subject string // exact subject, case-insensitive
	Date    string // YYYY-MM-DD
	Month   string // YYYY-MM
}

// Apply returns the records matching every set field, preserving order.
func (f Filter) Apply(records []api.Record) []api.Record {
	if f.Subject == "" && f.Date == "" && f.Month == "" {
		return records
	}

	out := make([]api.Record, 0, len(records))
	for _, r := range records {
		if f.Subject != "" && !strings.EqualFold(r.Subject, f.Subject) {
			continue
		}
		if f.Date != "" && r.MarkedAt.Format("2006-01-02") != f.Date {
			continue
		}
		if f.Month != "" && r.MarkedAt.Format("2006-01") != f.Month {
			continue
		}
		out = append(out, r)
	}
	return out
}
