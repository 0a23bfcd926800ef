// Package enums holds the string-backed value sets persisted in membership and
// outbox columns.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func parse[T ~string](kind, value string, known []T) (T, error) {
	candidate := T(strings.ToLower(strings.TrimSpace(value)))
	if !slices.Contains(known, candidate) {
		return "", fmt.Errorf("invalid %s %q", kind, value)
	}
	return candidate, nil
}
