package domain

import (
	"strconv"
	"time"
)

// AlertLevel grades how close a lot is to expiry.
type AlertLevel string

const (
	LevelExpired  AlertLevel = "EXPIRED"
	LevelCritical AlertLevel = "CRITICAL"
	LevelUrgent   AlertLevel = "URGENT"
	LevelWarning  AlertLevel = "WARNING"
	LevelLow      AlertLevel = "LOW"
	LevelInfo     AlertLevel = "INFO"
)

// ValidAlertLevel reports whether s names a level.
func ValidAlertLevel(s string) bool {
	switch AlertLevel(s) {
	case LevelExpired, LevelCritical, LevelUrgent, LevelWarning, LevelLow, LevelInfo:
		return true
	}
	return false
}

// ClassifyExpiry maps days-to-expiry onto an alert level.
func ClassifyExpiry(days int) AlertLevel {
	switch {
	case days <= 0:
		return LevelExpired
	case days <= 7:
		return LevelCritical
	case days <= 30:
		return LevelUrgent
	case days <= 60:
		return LevelWarning
	case days <= 90:
		return LevelLow
	default:
		return LevelInfo
	}
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil counts whole calendar days from asOf to expiry. It is negative
// once the expiry date has passed.
func DaysUntil(expiry, asOf time.Time) int {
	return int(Date(expiry).Sub(Date(asOf)).Hours() / 24)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
