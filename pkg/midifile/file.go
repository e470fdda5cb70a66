// Package midifile reads Standard MIDI Files as lazy sequences of timed
// events.
//
// A file is opened once to read the header and locate the track chunks.
// Every traversal then decodes the track data on the fly, either from
// memory or through a small per-track read buffer, so large files can be
// processed with little memory:
//
//	f, err := midifile.Open("song.mid", midifile.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	for ev, err := range f.Events() {
//		if err != nil {
//			return err
//		}
//		fmt.Println(ev)
//	}
//
// Format 1 files (and format 0 files with several tracks) are merged into a
// single sequence ordered by time. Tracks of format 2 files are iterated one
// at a time with Track.Events.
package midifile

import (
	"bytes"
	"encoding/binary"
	"io"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const (
	headerTag = "MThd"
	trackTag  = "MTrk"

	// Some files carry a 128 byte MacBinary header before MThd.
	macBinaryPrefix = 128

	maxTicksPerQuarter = 32767
)

// Options configures how a file is read.
type Options struct {
	// BufferSize is the number of bytes buffered per track while iterating.
	// Zero loads each track entirely into memory when the file is opened.
	// Sizes below 16 are raised to 16.
	BufferSize int
	// Logger receives debug records about skipped chunks. Nil disables it.
	Logger *log.Logger
}

// DefaultOptions returns a 100 byte buffer per track and no logging.
func DefaultOptions() Options {
	return Options{BufferSize: 100}
}

func (o Options) debug(msg string, keyvals ...any) {
	if o.Logger != nil {
		o.Logger.Debug(msg, keyvals...)
	}
}

// File is a parsed MIDI file header plus the location of its tracks.
type File struct {
	Format          uint16
	TicksPerQuarter uint16

	tracks []*Track
	path   string
	opts   Options
}

// Open reads the header of the named file and locates its tracks. With
// opts.BufferSize > 0 the file is opened again on every traversal, one
// handle per track, and closed when the traversal ends or is abandoned.
func Open(path string, opts Options) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve midi file path")
	}
	fh, err := os.Open(abs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open midi file")
	}
	defer func() { _ = fh.Close() }()

	f := &File{path: abs, opts: opts}
	if err := f.parse(fh, nil); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", filepath.Base(abs))
	}
	return f, nil
}

// Parse reads a MIDI file held in memory. The tracks reference data, which
// must not be modified while the File is in use.
func Parse(data []byte, opts Options) (*File, error) {
	opts.BufferSize = 0
	f := &File{opts: opts}
	if err := f.parse(bytes.NewReader(data), data); err != nil {
		return nil, errors.Wrap(err, "failed to parse midi data")
	}
	return f, nil
}

func (f *File) parse(r io.ReadSeeker, data []byte) error {
	fileSize, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}

	var tag [4]byte
	if err := readFull(r, tag[:]); err != nil {
		return err
	}
	if string(tag[:]) != headerTag {
		if _, err := r.Seek(macBinaryPrefix, io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
		if err := readFull(r, tag[:]); err != nil {
			return malformed("file does not start with %s", headerTag)
		}
		if string(tag[:]) != headerTag {
			return malformed("file does not start with %s", headerTag)
		}
		f.opts.debug("skipped macbinary prefix", "bytes", macBinaryPrefix)
	}

	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return truncated(err)
	}
	if size < 6 {
		return malformed("header length %d is smaller than 6 bytes", size)
	}
	var header struct {
		Format, Chunks, Division uint16
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return truncated(err)
	}
	if _, err := r.Seek(int64(size)-6, io.SeekCurrent); err != nil {
		return errors.WithStack(err)
	}
	if header.Division > maxTicksPerQuarter {
		return malformed("smpte time division 0x%04x not supported", header.Division)
	}
	if header.Division == 0 {
		return malformed("ticks per quarter note is zero")
	}
	f.Format = header.Format
	f.TicksPerQuarter = header.Division

	for i := 0; i < int(header.Chunks); i++ {
		if err := readFull(r, tag[:]); err != nil {
			return err
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return truncated(err)
		}
		offset, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return errors.WithStack(err)
		}

		if string(tag[:]) != trackTag {
			f.opts.debug("skipping chunk", "tag", string(tag[:]), "length", length)
			if _, err := r.Seek(int64(length), io.SeekCurrent); err != nil {
				return errors.WithStack(err)
			}
			continue
		}

		t := &Track{file: f, index: len(f.tracks), offset: offset, length: int64(length)}
		end := offset + int64(length)
		if end > fileSize {
			return errors.Wrapf(ErrTruncated, "track %d", t.index)
		}
		switch {
		case data != nil:
			t.data = data[offset:end:end]
			t.inMemory = true
		case f.opts.BufferSize <= 0:
			t.data = make([]byte, length)
			if err := readFull(r, t.data); err != nil {
				return errors.Wrapf(err, "track %d", t.index)
			}
			t.inMemory = true
		}
		if !t.inMemory || data != nil {
			if _, err := r.Seek(end, io.SeekStart); err != nil {
				return errors.WithStack(err)
			}
		}
		f.tracks = append(f.tracks, t)
	}
	return nil
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return truncated(err)
	}
	return nil
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.WithStack(ErrTruncated)
	}
	return errors.WithStack(err)
}

// Path returns the absolute path of the file, empty for parsed data.
func (f *File) Path() string { return f.path }

// Options returns the options the file was opened with.
func (f *File) Options() Options { return f.opts }

// Tracks returns the track chunks in file order. Non-track chunks are not
// included.
func (f *File) Tracks() []*Track { return f.tracks }

// Track returns the track at index i.
func (f *File) Track(i int) (*Track, error) {
	if i < 0 || i >= len(f.tracks) {
		return nil, errors.Wrapf(ErrNoTrack, "track %d of %d", i, len(f.tracks))
	}
	return f.tracks[i], nil
}

// Events iterates over all events of the file in time order, each one an
// independent copy. Multi-track files are merged; format 2 files with more
// than one track yield ErrFormat2Merge. The sequence always ends with a
// single end of track event.
func (f *File) Events() iter.Seq2[Event, error] {
	return owned(f.Borrow())
}

// Borrow is Events without the copies: the same Event is reused and is only
// valid until the next iteration step.
func (f *File) Borrow() iter.Seq2[*Event, error] {
	switch {
	case len(f.tracks) == 0:
		return compose(empty, f.TicksPerQuarter)
	case f.Format == 2 && len(f.tracks) > 1:
		return failed(errors.WithStack(ErrFormat2Merge))
	case len(f.tracks) == 1:
		return f.tracks[0].Borrow()
	}
	return compose(f.merged(), f.TicksPerQuarter)
}

// LengthMicros walks the whole file and returns its playing time in
// microseconds.
func (f *File) LengthMicros() (int64, error) {
	var total int64
	for ev, err := range f.Borrow() {
		if err != nil {
			return 0, err
		}
		total += ev.DeltaUS
	}
	return total, nil
}

// Duration is LengthMicros as a time.Duration.
func (f *File) Duration() (time.Duration, error) {
	us, err := f.LengthMicros()
	return time.Duration(us) * time.Microsecond, err
}
