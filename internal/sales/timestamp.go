package sales

import (
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
)

var (
	isoDate   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	brDate    = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	clockTime = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
)

// ParseOccurredAt validates a sale timestamp at the write boundary. Either
// instant is an RFC3339 value, or date is YYYY-MM-DD / DD/MM/YYYY with an
// optional HH:MM[:SS] clock interpreted in loc.
func ParseOccurredAt(instant, date, clock string, loc *time.Location) (time.Time, error) {
	instant = strings.TrimSpace(instant)
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if loc == nil {
		loc = time.UTC
	}

	if instant != "" {
		t, err := time.Parse(time.RFC3339, instant)
		if err != nil {
			return time.Time{}, invalidTimestamp("occurred_at", instant, "must be RFC3339")
		}
		return t.UTC(), nil
	}

	var layout string
	switch {
	case isoDate.MatchString(date):
		layout = "2006-01-02"
	case brDate.MatchString(date):
		layout = "02/01/2006"
	default:
		return time.Time{}, invalidTimestamp("date", date, "must be YYYY-MM-DD or DD/MM/YYYY")
	}

	value := date
	switch {
	case clock == "":
	case clockTime.MatchString(clock):
		if len(clock) == 5 {
			clock += ":00"
		}
		layout += " 15:04:05"
		value += " " + clock
	default:
		return time.Time{}, invalidTimestamp("time", clock, "must be HH:MM or HH:MM:SS")
	}

	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, invalidTimestamp("date", value, "is not a calendar date")
	}
	return t.UTC(), nil
}

func invalidTimestamp(field, value, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid sale timestamp").
		WithDetails(map[string]string{field: msg, "value": value})
}
