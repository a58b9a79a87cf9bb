package util

import (
	"encoding/json"
	"strconv"
)

// ToString attempts to coerce a decoded JSON scalar into a string.
//
// Numbers decoded with UseNumber() keep their original text.
func ToString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// ToStrings coerces a decoded JSON array into a string slice, skipping
// elements that are not scalars. The result is never nil.
func ToStrings(v any) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok {
		return []string{}, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := ToString(item); ok {
			out = append(out, s)
		}
	}
	return out, true
}
