package utils

import "strings"

// NewNullString trims s and returns nil when nothing is left, so optional columns stay NULL.
func NewNullString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
