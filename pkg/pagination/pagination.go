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
	DefaultLimit = 25
	MaxLimit     = 100
)

var errMalformedCursor = errors.New("malformed cursor")

// Direction orders pages by (created_at, id).
type Direction string

const (
	Desc Direction = "desc"
	Asc  Direction = "asc"
)

// ParseDirection maps the sort query value; empty means newest first.
func ParseDirection(value string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(value))); d {
	case "":
		return Desc, nil
	case Desc, Asc:
		return d, nil
	default:
		return "", fmt.Errorf("invalid sort %q", value)
	}
}

// OrderBy is the keyset ORDER BY for table.
func (d Direction) OrderBy(table string) string {
	dir := "DESC"
	if d == Asc {
		dir = "ASC"
	}
	return fmt.Sprintf("%[1]s.created_at %[2]s, %[1]s.id %[2]s", table, dir)
}

// After is the WHERE clause selecting rows past c in direction d.
func (d Direction) After(table string, c Cursor) (string, []any) {
	op := "<"
	if d == Asc {
		op = ">"
	}
	return fmt.Sprintf("(%[1]s.created_at, %[1]s.id) %[2]s (?, ?)", table, op), []any{c.CreatedAt, c.ID}
}

// Cursor is the last row of a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Trim cuts a result fetched with limit+1 rows down to limit and returns the
// cursor for the next page, or nil when rows was the last page.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, *Cursor) {
	if len(rows) <= limit || limit <= 0 {
		return rows, nil
	}
	rows = rows[:limit]
	next := cursorOf(rows[limit-1])
	return rows, &next
}

// EncodeCursor renders c as an opaque URL-safe token.
func EncodeCursor(c Cursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor reverses EncodeCursor. An empty value is the first page.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	ts, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, errMalformedCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	rowID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	return &Cursor{CreatedAt: createdAt, ID: rowID}, nil
}
