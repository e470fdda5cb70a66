package midifile

import (
	"fmt"
	"strings"
)

// Channel event kinds. Event.Status holds these values with the channel
// nibble cleared.
const (
	NoteOff         byte = 0x80
	NoteOn          byte = 0x90
	PolyPressure    byte = 0xa0
	ControlChange   byte = 0xb0
	ProgramChange   byte = 0xc0
	ChannelPressure byte = 0xd0
	PitchBend       byte = 0xe0
)

// Meta event kinds (the byte following the 0xff prefix).
const (
	SequenceNumber    byte = 0x00
	TextEvent         byte = 0x01
	Copyright         byte = 0x02
	TrackName         byte = 0x03
	InstrumentName    byte = 0x04
	Lyrics            byte = 0x05
	Marker            byte = 0x06
	CueMarker         byte = 0x07
	ProgramName       byte = 0x08
	DeviceName        byte = 0x09
	ChannelPrefix     byte = 0x20
	MIDIPort          byte = 0x21
	EndOfTrack        byte = 0x2f
	SetTempo          byte = 0x51
	SMPTEOffset       byte = 0x54
	TimeSignature     byte = 0x58
	KeySignature      byte = 0x59
	SequencerSpecific byte = 0x7f
)

// Sysex and escape events.
const (
	SysEx  byte = 0xf0
	Escape byte = 0xf7
)

// NoTime marks an Event whose real time delta has not been computed.
const NoTime int64 = -1

var statusNames = map[byte]string{
	NoteOff:           "note_off",
	NoteOn:            "note_on",
	PolyPressure:      "polytouch",
	ControlChange:     "control_change",
	ProgramChange:     "program_change",
	ChannelPressure:   "aftertouch",
	PitchBend:         "pitchwheel",
	SequenceNumber:    "sequence_number",
	TextEvent:         "text",
	Copyright:         "copyright",
	TrackName:         "track_name",
	InstrumentName:    "instrument_name",
	Lyrics:            "lyrics",
	Marker:            "marker",
	CueMarker:         "cue_marker",
	ProgramName:       "program_name",
	DeviceName:        "device_name",
	ChannelPrefix:     "channel_prefix",
	MIDIPort:          "midi_port",
	EndOfTrack:        "end_of_track",
	SetTempo:          "set_tempo",
	SMPTEOffset:       "smpte_offset",
	TimeSignature:     "time_signature",
	KeySignature:      "key_signature",
	SequencerSpecific: "sequencer_specific",
	SysEx:             "sysex",
	Escape:            "escape",
}

// StatusName returns the display name for a status value as stored in
// Event.Status.
func StatusName(status byte) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	if status <= lastMetaType {
		return fmt.Sprintf("meta_0x%02x", status)
	}
	return fmt.Sprintf("midi_0x%02x", status)
}

// Event is one decoded event of a track or of a merged file.
type Event struct {
	// Status is the event kind: the status byte with the channel nibble
	// cleared for channel events, the meta type for meta events, SysEx or
	// Escape otherwise.
	Status byte
	// StatusByte is the status as read from the file. For channel events it
	// still carries the channel.
	StatusByte byte
	// Data is the raw payload, without status byte, meta prefix or length.
	Data []byte
	// DeltaTicks is the time since the previous event in midi ticks.
	DeltaTicks uint32
	// DeltaUS is DeltaTicks converted to microseconds with the tempo in
	// effect, or NoTime.
	DeltaUS int64
	// TimestampUS is the time since the start of playback in microseconds.
	// Only set by a playback scheduler.
	TimestampUS int64
}

func (e *Event) set(status byte, data []byte, delta uint32) {
	e.StatusByte = status
	if status >= firstChannelStatus && status <= lastChannelStatus {
		e.Status = status & 0xf0
	} else {
		e.Status = status
	}
	e.Data = data
	e.DeltaTicks = delta
	e.DeltaUS = NoTime
	e.TimestampUS = 0
}

func endOfTrack() *Event {
	return &Event{Status: EndOfTrack, StatusByte: EndOfTrack, Data: []byte{}}
}

// Clone returns a deep copy of e. Use it to keep an event obtained from a
// borrowed iteration.
func (e Event) Clone() Event {
	c := e
	c.Data = append([]byte(nil), e.Data...)
	return c
}

// Name returns the event name, for example "note_on" or "set_tempo".
func (e Event) Name() string { return StatusName(e.Status) }

// IsMeta reports whether e is a meta event.
func (e Event) IsMeta() bool { return e.Status <= lastMetaType }

// IsChannel reports whether e is a channel event (note on, control change...).
func (e Event) IsChannel() bool {
	return e.Status >= firstChannelStatus && e.Status <= lastChannelStatus
}

// IsEndOfTrack reports whether e is the end of track meta event.
func (e Event) IsEndOfTrack() bool { return e.Status == EndOfTrack }

// Channel returns the channel of a channel event or of a channel prefix
// meta event.
func (e Event) Channel() (uint8, bool) {
	switch {
	case e.IsChannel():
		return e.StatusByte & 0x0f, true
	case e.Status == ChannelPrefix && len(e.Data) > 0:
		return e.Data[0], true
	}
	return 0, false
}

// ToMIDI returns the bytes to send the event to a midi device: status byte
// followed by the payload. Meta events only exist in files and fail with
// ErrNotSendable.
func (e Event) ToMIDI() ([]byte, error) {
	if e.IsMeta() {
		return nil, ErrNotSendable
	}
	out := make([]byte, 0, 1+len(e.Data))
	out = append(out, e.StatusByte)
	return append(out, e.Data...), nil
}

func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Name())
	fmt.Fprintf(&b, " delta[miditicks]=%d", e.DeltaTicks)
	if e.DeltaUS != NoTime {
		fmt.Fprintf(&b, " delta[usec]=%d", e.DeltaUS)
	}
	if len(e.Data) > 5 {
		fmt.Fprintf(&b, " data=% x...", e.Data[:5])
	} else {
		fmt.Fprintf(&b, " data=% x", e.Data)
	}
	if msg, err := e.Message(); err == nil {
		if fields := msg.String(); fields != "" {
			b.WriteString(" ")
			b.WriteString(fields)
		}
	}
	return b.String()
}
