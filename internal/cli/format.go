package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
	"trade-journal/pkg/utils"
)

// FormatDate formats a calendar date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(models.DateLayout)
}

// FormatExit formats an optional exit date as the calendar day in loc.
func FormatExit(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	if loc == nil {
		loc = time.UTC
	}
	return FormatDate(t.In(loc))
}

// FormatPoints formats an optional point distance with sign.
func FormatPoints(p *int64) string {
	if p == nil {
		return "-"
	}
	if *p > 0 {
		return "+" + strconv.FormatInt(*p, 10)
	}
	return strconv.FormatInt(*p, 10)
}

// FormatOptionalPrice formats a nullable price.
func FormatOptionalPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return utils.FormatPrice(d.Decimal)
}

// TruncateString truncates a string to max runes with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// parseDecimal reads an optional decimal flag. Empty input is null.
func parseDecimal(field, s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, errors.NewValidationError(field, s, "is not a number")
	}
	return decimal.NewNullDecimal(d), nil
}

// parseDate reads a calendar date. "today" and "yesterday" are relative to
// now in loc; empty input yields the zero time.
func parseDate(field, s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return time.Time{}, nil
	case "today":
		return models.DateOnly(now.In(loc)), nil
	case "yesterday":
		return models.DateOnly(now.In(loc).AddDate(0, 0, -1)), nil
	}
	t, err := store.ParseWireTime(s)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, s, "is not a date (use YYYY-MM-DD)")
	}
	return t, nil
}

// parseMoment reads an exit or ledger date. Calendar dates and "today" or
// "yesterday" are midnight in loc; timestamps with a zone are kept.
func parseMoment(field, s string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return time.Time{}, nil
	case "today", "yesterday":
		day := now.In(loc)
		if strings.EqualFold(s, "yesterday") {
			day = day.AddDate(0, 0, -1)
		}
		y, m, d := day.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc).UTC(), nil
	}
	t, err := store.ParseWireTimeIn(s, loc)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, s, "is not a date (use YYYY-MM-DD)")
	}
	return t, nil
}
