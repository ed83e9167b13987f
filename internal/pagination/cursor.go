// Package pagination provides opaque cursors over id-ordered result sets.
package pagination

import (
	"encoding/base64"
	"errors"
	"sort"
	"strconv"
)

// Limits for page sizes.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ErrInvalidCursor is returned for cursors this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

const cursorPrefix = "v1:"

// Encode returns an opaque cursor pointing just after id.
func Encode(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + id))
}

// Decode returns the id a cursor points after. An empty cursor decodes to
// "" (start of the set).
func Decode(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(raw) <= len(cursorPrefix) || string(raw[:len(cursorPrefix)]) != cursorPrefix {
		return "", ErrInvalidCursor
	}
	return string(raw[len(cursorPrefix):]), nil
}

// ParseLimit parses a page size. Empty means DefaultLimit; values above
// MaxLimit are clamped.
func ParseLimit(s string) (int, error) {
	if s == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}

// Page returns up to limit items whose key sorts strictly after the cursor
// position, plus the cursor for the next page ("" when this is the last).
// items must already be sorted ascending by key.
func Page[T any](items []T, cursor string, limit int, key func(T) string) ([]T, string, error) {
	after, err := Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if after != "" {
		start = sort.Search(len(items), func(i int) bool { return key(items[i]) > after })
	}
	items = items[start:]

	if len(items) <= limit {
		return items, "", nil
	}
	items = items[:limit]
	return items, Encode(key(items[len(items)-1])), nil
}
