package datasource

import (
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/quantra-lab/barsim/internal/types"
)

// dateLayouts are the calendar-day formats accepted for the date column.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	time.RFC3339,
}

// parseBarDate parses a raw date cell. The zero time and false are returned
// for anything unparseable.
func parseBarDate(v string) (time.Time, bool) {
	s := strings.TrimSpace(v)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// buildRawBar assembles a RawBar from one scanned row. Rows with an
// unparseable date or a null/empty close are unusable and reported as such;
// other OHLC cells may be NaN without invalidating the row.
func buildRawBar(columns []string, values []sql.NullString) (types.RawBar, bool) {
	raw := types.RawBar{
		Date:  time.Time{},
		Open:  math.NaN(),
		High:  math.NaN(),
		Low:   math.NaN(),
		Close: math.NaN(),
		Extra: make(map[string]string),
	}

	closeSeen := false

	for i, column := range columns {
		value := ""
		if values[i].Valid {
			value = values[i].String
		}

		switch strings.ToLower(column) {
		case "date":
			date, ok := parseBarDate(value)
			if !ok {
				return types.RawBar{}, false
			}

			raw.Date = date
		case "open":
			raw.Open = types.ParseFloat(value)
		case "high":
			raw.High = types.ParseFloat(value)
		case "low":
			raw.Low = types.ParseFloat(value)
		case "close":
			raw.Close = types.ParseFloat(value)
			closeSeen = values[i].Valid && strings.TrimSpace(value) != ""
		default:
			raw.Extra[column] = value
		}
	}

	if raw.Date.IsZero() || !closeSeen || math.IsNaN(raw.Close) {
		return types.RawBar{}, false
	}

	return raw, true
}
