package fetch

import (
	"errors"
	"fmt"
)

// ErrNoSegments means there was nothing to download, or nothing downloaded.
var ErrNoSegments = errors.New("no segments")

// SegmentError describes one failed segment fetch. It never aborts a
// pipeline run; the unit at Index is marked absent instead.
type SegmentError struct {
	Index  int
	URL    string
	Status int // HTTP status, 0 for transport errors
	Err    error
}

func (e *SegmentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("segment %d (%s): unexpected status code: %d", e.Index, e.URL, e.Status)
	}
	return fmt.Sprintf("segment %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}
