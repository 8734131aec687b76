// Package pagination implements keyset paging over (created_at desc, id desc).
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	cursorSep = "|"
)

var errMalformedCursor = errors.New("malformed cursor")

// Params is what list endpoints accept from callers.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the sort key of the last row a caller has seen.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func (c Cursor) String() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSep + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// LimitWithBuffer is the row count to fetch: one past the page so a next page
// can be detected.
func LimitWithBuffer(limit int) int { return NormalizeLimit(limit) + 1 }

func EncodeCursor(cursor Cursor) string { return cursor.String() }

// ParseCursor returns nil for a blank token.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	stamp, rawID, found := strings.Cut(string(raw), cursorSep)
	if !found {
		return nil, errMalformedCursor
	}

	var c Cursor
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", errMalformedCursor, err)
	}
	if c.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("%w: id: %v", errMalformedCursor, err)
	}
	return &c, nil
}

// Trim drops the lookahead row fetched via LimitWithBuffer. The returned token
// is empty on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	n := NormalizeLimit(limit)
	if len(rows) <= n {
		return rows, ""
	}
	return rows[:n], key(rows[n-1]).String()
}
