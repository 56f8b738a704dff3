// Package format renders values for display in the client.
package format

import "time"

// InvalidDate is shown for timestamps that cannot be parsed.
const InvalidDate = "Invalid Date"

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Date renders an RFC3339 (or date-only) timestamp as "dd/mm/yyyy, hh:mm"
// on a 24 hour clock, in the timestamp's own offset.
func Date(s string) string {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006, 15:04")
		}
	}
	return InvalidDate
}
