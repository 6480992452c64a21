package domain

import "fmt"

// Document number prefixes.
const (
	PrefixGRN      = "GRN"
	PrefixRGRN     = "RGRN"
	PrefixTransfer = "ST"
)

// DocumentNumber formats a yearly sequence value, e.g. GRN-2026-00042.
func DocumentNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}
