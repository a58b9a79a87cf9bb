package poll

import (
	"encoding/json"
	"errors"
	"fmt"

	"manual-polling-tool/internal/util"
)

// Result is a decoded backend reply. The body is kept verbatim; only the row
// count is interpreted.
type Result struct {
	Body       json.RawMessage `json:"body"`
	Rows       int             `json:"rows"`
	StatusCode int             `json:"status_code"`
	Size       int64           `json:"size"`
}

// Pretty returns the body indented with two spaces.
func (r *Result) Pretty() ([]byte, error) {
	if r == nil || len(r.Body) == 0 {
		return nil, errors.New("empty result")
	}
	return util.IndentJSON(r.Body)
}

// CountRows extracts the row count of a decoded reply: the length of a bare
// array, or of the "data" array of an object. Anything else counts as zero.
func CountRows(v any) int {
	switch x := v.(type) {
	case []any:
		return len(x)
	case map[string]any:
		if data, ok := x["data"].([]any); ok {
			return len(data)
		}
	}
	return 0
}

// ErrorKind classifies a failed poll.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindHTTP    ErrorKind = "http"
	KindDecode  ErrorKind = "decode"
	KindBackend ErrorKind = "backend"
)

// Error is returned by Client.Poll. Message is the text shown to the user.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Describe returns a short log-friendly description of err.
func Describe(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		if pe.StatusCode != 0 {
			return fmt.Sprintf("%s (status %d)", pe.Kind, pe.StatusCode)
		}
		return string(pe.Kind)
	}
	return "internal"
}
