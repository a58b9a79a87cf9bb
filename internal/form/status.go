package form

import (
	"errors"
	"fmt"

	"manual-polling-tool/internal/poll"
)

// State is the phase of a provider panel.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// LoadingMessage is shown while a submission is in flight.
const LoadingMessage = "Polling data, please wait..."

// Status is the status line of a panel.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message"`
}

// SuccessMessage is the status text after a successful poll.
func SuccessMessage(rows int) string {
	return fmt.Sprintf("Polling successful! Fetched %d rows.", rows)
}

// FailureMessage is the status text after a failed poll.
func FailureMessage(err error) string {
	msg := err.Error()
	var pe *poll.Error
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	return "Polling failed: " + msg
}
