package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// QueryInt reads an optional bounded integer query parameter.
func QueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := QueryString(r, key, 0)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be numeric").
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// QueryString returns a trimmed query value with control characters removed,
// cut to maxLen runes when maxLen is positive.
func QueryString(r *http.Request, key string, maxLen int) string {
	return clean(r.URL.Query().Get(key), maxLen)
}

func clean(input string, maxLen int) string {
	out := strings.Map(func(c rune) rune {
		if unicode.IsControl(c) {
			return -1
		}
		return c
	}, strings.TrimSpace(input))
	if maxLen > 0 {
		if runes := []rune(out); len(runes) > maxLen {
			out = string(runes[:maxLen])
		}
	}
	return out
}
