package midifile

import (
	"bufio"
	"bytes"
	"io"
	"iter"
	"os"

	"github.com/pkg/errors"
)

// Track is one MTrk chunk of a file. Its data is either held in memory or
// read from the file through a small buffer on every traversal. A Track
// holds no iteration state, so several traversals can run at the same time.
type Track struct {
	file   *File
	index  int
	offset int64
	length int64

	data     []byte
	inMemory bool
}

// Index returns the position of the track in the file.
func (t *Track) Index() int { return t.index }

// Len returns the length of the track data in bytes, as declared by the
// chunk header.
func (t *Track) Len() int64 { return t.length }

// Events iterates over the events of the track. Each event is an
// independent copy. The last event is always a single end of track event.
func (t *Track) Events() iter.Seq2[Event, error] {
	return owned(t.Borrow())
}

// Borrow iterates over the events of the track like Events, but yields the
// same Event over and over. The event and its Data are only valid until the
// next iteration step; use Clone to keep one.
func (t *Track) Borrow() iter.Seq2[*Event, error] {
	return compose(t.raw(), t.file.TicksPerQuarter)
}

// raw yields the events exactly as decoded, with no end of track guarantee
// and no real time deltas.
func (t *Track) raw() iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		src, closeSrc, err := t.open()
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = closeSrc() }()

		dec := newDecoder(src, t.length)
		ev := &Event{}
		for {
			delta, err := dec.delta()
			if err == io.EOF {
				return
			}
			if err == nil {
				var status byte
				var data []byte
				status, data, err = dec.next()
				ev.set(status, data, delta)
			}
			if err != nil {
				yield(nil, errors.Wrapf(err, "track %d", t.index))
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (t *Track) open() (byteSource, func() error, error) {
	if t.inMemory {
		return bytes.NewReader(t.data), func() error { return nil }, nil
	}

	f, err := os.Open(t.file.path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "track %d", t.index)
	}
	section := io.NewSectionReader(f, t.offset, t.length)
	return bufio.NewReaderSize(section, t.file.opts.BufferSize), f.Close, nil
}
