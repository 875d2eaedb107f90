package util

import (
	"strings"

	"github.com/Thetimii/dashboard-sub001/internal/model"
)

// NormalizeEmail trims and lower-cases an address. strings.ToLower is
// locale-independent, so the result only depends on the input bytes.
func NormalizeEmail(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", &model.ValidationError{Field: "email", Reason: "empty"}
	}
	return s, nil
}

// NormalizeName lower-cases and trims a name part for fn/ln matching.
func NormalizeName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// SplitName splits a full name into first and last parts.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}
