package midifile

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformed is returned for any structural problem in the file:
	// bad chunk tags, bad header fields, invalid status bytes, truncated
	// records and payloads that cannot be decoded.
	ErrMalformed = errors.New("malformed midi file")

	// ErrTruncated is returned when the data ends in the middle of an event.
	// It matches ErrMalformed as well.
	ErrTruncated = fmt.Errorf("%w: truncated event", ErrMalformed)

	// ErrFormat2Merge is returned when merged iteration is requested on a
	// format 2 file with more than one track.
	ErrFormat2Merge = errors.New("tracks of a format 2 midi file cannot be merged")

	// ErrNotSendable is returned by ToMIDI for meta events.
	ErrNotSendable = errors.New("meta events cannot be sent to a midi device")

	// ErrNoTrack is returned when a track index is out of range.
	ErrNoTrack = errors.New("no such track")
)

// FormatError records where in a track's data a decoding error happened.
type FormatError struct {
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("offset %d: %v", e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return errors.WithStack(fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...))
}
