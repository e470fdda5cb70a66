// Package transport sends decoded MIDI file events to MIDI outputs: ports
// of the system MIDI driver or raw device files such as a serial line.
package transport

import (
	"io"
	"iter"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/james-see/midiseq/pkg/midifile"
)

// Sink receives raw MIDI messages, one per call. drivers.Out satisfies it.
type Sink interface {
	Send(msg []byte) error
}

// Port describes a MIDI output port.
type Port struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// ListPorts returns the output ports of the registered MIDI driver.
func ListPorts() []Port {
	outs := midi.GetOutPorts()
	ports := make([]Port, 0, len(outs))
	for _, out := range outs {
		ports = append(ports, Port{Number: out.Number(), Name: out.String()})
	}
	return ports
}

// OpenPort opens an output port by name, or by number when name is an
// integer.
func OpenPort(name string) (drivers.Out, error) {
	var out drivers.Out
	var err error
	if n, convErr := strconv.Atoi(name); convErr == nil {
		out, err = midi.OutPort(n)
	} else {
		out, err = midi.FindOutPort(name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "no midi output port %q", name)
	}
	if err := out.Open(); err != nil {
		return nil, errors.Wrapf(err, "failed to open midi output port %q", out.String())
	}
	return out, nil
}

// Writer is a Sink writing messages back to back to an io.Writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Sink on w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (s *Writer) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(msg)
	return errors.WithStack(err)
}

// Close closes the underlying writer if it is an io.Closer.
func (s *Writer) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenSerial opens a device file, such as a UART wired to a MIDI output,
// for writing. The line speed (31250 baud for MIDI) must be set up outside
// this program.
func OpenSerial(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial device")
	}
	return NewWriter(f), nil
}

// Send writes ev to sink. Meta events are skipped and reported with
// sent == false. Escape events carry raw bytes and are sent without their
// 0xF7 prefix.
func Send(sink Sink, ev *midifile.Event) (sent bool, err error) {
	switch {
	case ev.IsMeta():
		return false, nil
	case ev.Status == midifile.Escape:
		if len(ev.Data) == 0 {
			return false, nil
		}
		return true, sink.Send(ev.Data)
	}
	msg, err := ev.ToMIDI()
	if err != nil {
		return false, err
	}
	return true, sink.Send(msg)
}

// Forward sends every event of seq to sink and returns the number of
// messages sent. It does not pace the events; wrap seq with a
// playback.Scheduler for that.
func Forward(seq iter.Seq2[*midifile.Event, error], sink Sink) (int, error) {
	n := 0
	for ev, err := range seq {
		if err != nil {
			return n, err
		}
		sent, err := Send(sink, ev)
		if err != nil {
			return n, errors.Wrapf(err, "failed to send %s", ev.Name())
		}
		if sent {
			n++
		}
	}
	return n, nil
}

const (
	ccResetAllControllers = 121
	ccAllNotesOff         = 123
)

// Reset sends all notes off and reset all controllers on all 16 channels.
func Reset(sink Sink) error {
	for ch := range uint8(16) {
		for _, msg := range []midi.Message{
			midi.ControlChange(ch, ccAllNotesOff, 0),
			midi.ControlChange(ch, ccResetAllControllers, 0),
		} {
			if err := sink.Send(msg); err != nil {
				return errors.Wrapf(err, "failed to reset channel %d", ch)
			}
		}
	}
	return nil
}
