// In file: internal/orchestrator/errors.go
package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnLimitExceeded is returned when the model keeps requesting tools
	// past Config.MaxTurns. The concrete error is a *TurnLimitError.
	ErrTurnLimitExceeded = errors.New("turn limit exceeded")

	// ErrCallTimeout marks a model call that ran past Config.CallTimeout while
	// the run itself was still live.
	ErrCallTimeout = errors.New("model call timed out")
)

// TurnLimitError carries whatever terminal output was recorded before the
// run was cut off.
type TurnLimitError struct {
	MaxTurns int
	// Partial is the last terminal-tool report, nil if none was published.
	Partial Report
}

func (e *TurnLimitError) Error() string {
	if e.Partial != nil {
		return fmt.Sprintf("%s after %d turns (partial report available)", ErrTurnLimitExceeded, e.MaxTurns)
	}
	return fmt.Sprintf("%s after %d turns", ErrTurnLimitExceeded, e.MaxTurns)
}

func (e *TurnLimitError) Unwrap() error {
	return ErrTurnLimitExceeded
}
