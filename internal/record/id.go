package record

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/starford/lookout/internal/apperr"
)

// oidKey is the legacy document-store extended-id wrapper key.
const oidKey = "$oid"

// ExtractID normalizes a backend identifier to its canonical string.
//
// A single-key {"$oid": v} wrapper is unwrapped exactly one level; anything
// else is stringified as-is.
//
// A nil error always comes with a non-empty id. nil, a {"$oid": nil} wrapper
// or an identifier that stringifies to "" yields apperr.ErrMissingIdentifier,
// so callers never hold a record keyed by "".
func ExtractID(raw any) (string, error) {
	if raw == nil {
		return "", apperr.ErrMissingIdentifier
	}
	if m, ok := raw.(map[string]any); ok && len(m) == 1 {
		if v, ok := m[oidKey]; ok {
			if v == nil {
				return "", apperr.ErrMissingIdentifier
			}
			raw = v
		}
	}
	id := stringify(raw)
	if id == "" {
		return "", apperr.ErrMissingIdentifier
	}
	return id, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
