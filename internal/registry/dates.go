package registry

import (
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years after the reference year
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// ParseDate parses day/month/year text such as "5/3/2021" or "05/03/21".
//
// The result is invalid when a segment is missing or non-numeric, when the
// year is not 2 or 4 digits, or when the date does not exist ("31/02/2020").
// refYear anchors the two-digit year pivot.
func ParseDate(s string, refYear int) pgtype.Date {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return pgtype.Date{Valid: false}
	}

	day, ok := atoiDigits(parts[0])
	if !ok {
		return pgtype.Date{Valid: false}
	}
	month, ok := atoiDigits(parts[1])
	if !ok {
		return pgtype.Date{Valid: false}
	}

	yearText := strings.TrimSpace(parts[2])
	year, ok := atoiDigits(yearText)
	if !ok {
		return pgtype.Date{Valid: false}
	}
	switch len(yearText) {
	case 4:
	case 2:
		year += 2000
		if year > refYear+TwoDigitYearPivot {
			year -= 100
		}
	default:
		return pgtype.Date{Valid: false}
	}

	if year < 1 || month < 1 || month > 12 || day < 1 || day > 31 {
		return pgtype.Date{Valid: false}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow, so 31/02 comes back as March.
	if t.Day() != day || t.Month() != time.Month(month) {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// atoiDigits parses a non-empty run of ASCII digits, ignoring surrounding space.
func atoiDigits(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 4 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// processingDate returns the UTC calendar day containing now.
func processingDate(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
