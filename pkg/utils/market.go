package utils

import (
	"time"
)

type sessionHours struct {
	name       string
	open, shut int // UTC hours; shut < open wraps midnight
}

// Overlaps first so the narrowest label wins.
var forexSessions = []sessionHours{
	{"Sydney-Tokyo", 0, 6},
	{"Tokyo-London", 8, 9},
	{"London-New-York", 13, 17},
	{"Sydney", 21, 6},
	{"Tokyo", 0, 9},
	{"London", 8, 17},
	{"New-York", 13, 22},
}

// IsForexOpen reports whether the spot market trades at t. The week runs
// from Sunday 21:00 UTC to Friday 22:00 UTC.
func IsForexOpen(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return u.Hour() >= 21
	case time.Friday:
		return u.Hour() < 22
	}
	return true
}

// SessionAt returns the market session label in force at t, or false when
// the market is closed. Labels match models.Sessions.
func SessionAt(t time.Time) (string, bool) {
	if !IsForexOpen(t) {
		return "", false
	}
	h := t.UTC().Hour()
	for _, s := range forexSessions {
		if inHours(h, s.open, s.shut) {
			return s.name, true
		}
	}
	return "", false
}

func inHours(h, open, shut int) bool {
	if open <= shut {
		return h >= open && h < shut
	}
	return h >= open || h < shut
}
