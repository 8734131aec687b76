// Package enums holds the string-backed domain enums stored in the database
// and exchanged over the API.
package enums

import (
	"fmt"
	"slices"
)

func member[T ~string](v T, set []T) bool {
	return slices.Contains(set, v)
}

// parse returns raw as a T when it is in set. kind names the enum in errors.
func parse[T ~string](kind, raw string, set []T) (T, error) {
	if v := T(raw); slices.Contains(set, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
