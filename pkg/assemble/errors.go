package assemble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hollowness-inside/hlsgrab/pkg/mux"
)

// ErrMuxFailure matches every failed mux assembly, including an unavailable
// engine.
var ErrMuxFailure = errors.New("mux failure")

// MuxError is returned when every rung of the mux ladder failed. Err is the
// last engine error.
type MuxError struct {
	Attempts []mux.Mode
	Err      error
}

func (e *MuxError) Error() string {
	modes := make([]string, len(e.Attempts))
	for i, m := range e.Attempts {
		modes[i] = string(m)
	}
	return fmt.Sprintf("mux failed after %s: %v", strings.Join(modes, ", "), e.Err)
}

func (e *MuxError) Unwrap() error {
	return e.Err
}

func (e *MuxError) Is(target error) bool {
	return target == ErrMuxFailure
}

// EngineUnavailableError means the muxing engine could not be started. It is
// reported apart from codec failures but matches ErrMuxFailure as well.
type EngineUnavailableError struct {
	Err error
}

func (e *EngineUnavailableError) Error() string {
	return fmt.Sprintf("muxing engine unavailable: %v", e.Err)
}

func (e *EngineUnavailableError) Unwrap() error {
	return e.Err
}

func (e *EngineUnavailableError) Is(target error) bool {
	return target == ErrMuxFailure || target == mux.ErrEngineUnavailable
}
