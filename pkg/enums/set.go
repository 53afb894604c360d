// Package enums holds the closed string vocabularies shared by storage, the
// purchase state machine and the HTTP layer.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// set is the closed list of values one enum type accepts.
type set[T ~string] struct {
	kind   string
	values []T
}

func newSet[T ~string](kind string, values ...T) set[T] {
	return set[T]{kind: kind, values: values}
}

func (s set[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

// parse accepts the canonical spelling with surrounding space and any case.
func (s set[T]) parse(raw string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if !s.has(v) {
		return "", fmt.Errorf("invalid %s %q", s.kind, raw)
	}
	return v, nil
}
