package midifile

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Message is the decoded form of an event payload. The concrete type tells
// which fields exist, use a type switch:
//
//	switch m := msg.(type) {
//	case midifile.NoteOnMsg:
//		play(m.Channel, m.Note, m.Velocity)
//	case midifile.SetTempoMsg:
//		...
//	}
type Message interface {
	// String lists the message fields as key=value pairs.
	String() string
	isMessage()
}

type NoteOffMsg struct{ Channel, Note, Velocity uint8 }
type NoteOnMsg struct{ Channel, Note, Velocity uint8 }
type PolyPressureMsg struct{ Channel, Note, Value uint8 }
type ControlChangeMsg struct{ Channel, Control, Value uint8 }
type ProgramChangeMsg struct{ Channel, Program uint8 }
type ChannelPressureMsg struct{ Channel, Value uint8 }

// PitchBendMsg holds the bend in [-8192, 8191], 0 meaning no bend.
type PitchBendMsg struct {
	Channel uint8
	Pitch   int16
}

type SequenceNumberMsg struct{ Number uint16 }

// TextMsg is one of the free text meta events: text, copyright, lyrics,
// marker or cue marker. Type tells which.
type TextMsg struct {
	Type byte
	Text string
}

// NameMsg is one of the naming meta events: track, instrument, program or
// device name.
type NameMsg struct {
	Type byte
	Name string
}

type ChannelPrefixMsg struct{ Channel uint8 }
type MIDIPortMsg struct{ Port uint8 }
type EndOfTrackMsg struct{}

// SetTempoMsg holds the new tempo in microseconds per quarter note.
type SetTempoMsg struct{ MicrosPerQuarter uint32 }

type SMPTEOffsetMsg struct {
	FrameRate float64 // 24, 25, 29.97 or 30
	Hours     uint8
	Minutes   uint8
	Seconds   uint8
	Frames    uint8
	SubFrames uint8
}

type TimeSignatureMsg struct {
	Numerator           uint8
	Denominator         int // already 2^n
	ClocksPerClick      uint8
	Notated32ndsPerBeat uint8
}

// KeySignatureMsg holds the number of sharps (positive) or flats (negative)
// and the mode. Values are range checked when decoded.
type KeySignatureMsg struct {
	SharpsFlats int8
	Minor       bool
}

type SequencerSpecificMsg struct{ Data []byte }

// UnknownMetaMsg is a meta event with a type this package does not decode.
type UnknownMetaMsg struct {
	Type byte
	Data []byte
}

type SysExMsg struct{ Data []byte }
type EscapeMsg struct{ Data []byte }

func (NoteOffMsg) isMessage()           {}
func (NoteOnMsg) isMessage()            {}
func (PolyPressureMsg) isMessage()      {}
func (ControlChangeMsg) isMessage()     {}
func (ProgramChangeMsg) isMessage()     {}
func (ChannelPressureMsg) isMessage()   {}
func (PitchBendMsg) isMessage()         {}
func (SequenceNumberMsg) isMessage()    {}
func (TextMsg) isMessage()              {}
func (NameMsg) isMessage()              {}
func (ChannelPrefixMsg) isMessage()     {}
func (MIDIPortMsg) isMessage()          {}
func (EndOfTrackMsg) isMessage()        {}
func (SetTempoMsg) isMessage()          {}
func (SMPTEOffsetMsg) isMessage()       {}
func (TimeSignatureMsg) isMessage()     {}
func (KeySignatureMsg) isMessage()      {}
func (SequencerSpecificMsg) isMessage() {}
func (UnknownMetaMsg) isMessage()       {}
func (SysExMsg) isMessage()             {}
func (EscapeMsg) isMessage()            {}

func (m NoteOffMsg) String() string {
	return fmt.Sprintf("channel=%d note=%d velocity=%d", m.Channel, m.Note, m.Velocity)
}
func (m NoteOnMsg) String() string {
	return fmt.Sprintf("channel=%d note=%d velocity=%d", m.Channel, m.Note, m.Velocity)
}
func (m PolyPressureMsg) String() string {
	return fmt.Sprintf("channel=%d note=%d value=%d", m.Channel, m.Note, m.Value)
}
func (m ControlChangeMsg) String() string {
	return fmt.Sprintf("channel=%d control=%d value=%d", m.Channel, m.Control, m.Value)
}
func (m ProgramChangeMsg) String() string {
	return fmt.Sprintf("channel=%d program=%d", m.Channel, m.Program)
}
func (m ChannelPressureMsg) String() string {
	return fmt.Sprintf("channel=%d value=%d", m.Channel, m.Value)
}
func (m PitchBendMsg) String() string {
	return fmt.Sprintf("channel=%d pitch=%d", m.Channel, m.Pitch)
}
func (m SequenceNumberMsg) String() string { return fmt.Sprintf("number=%d", m.Number) }
func (m TextMsg) String() string           { return fmt.Sprintf("text=%q", m.Text) }
func (m NameMsg) String() string           { return fmt.Sprintf("name=%q", m.Name) }
func (m ChannelPrefixMsg) String() string  { return fmt.Sprintf("channel=%d", m.Channel) }
func (m MIDIPortMsg) String() string       { return fmt.Sprintf("port=%d", m.Port) }
func (EndOfTrackMsg) String() string       { return "" }
func (m SetTempoMsg) String() string       { return fmt.Sprintf("tempo=%d", m.MicrosPerQuarter) }
func (m SMPTEOffsetMsg) String() string {
	return fmt.Sprintf("frame_rate=%g hours=%d minutes=%d seconds=%d frames=%d sub_frames=%d",
		m.FrameRate, m.Hours, m.Minutes, m.Seconds, m.Frames, m.SubFrames)
}
func (m TimeSignatureMsg) String() string {
	return fmt.Sprintf("numerator=%d denominator=%d clocks_per_click=%d notated_32nd_notes_per_beat=%d",
		m.Numerator, m.Denominator, m.ClocksPerClick, m.Notated32ndsPerBeat)
}
func (m KeySignatureMsg) String() string   { return "key=" + m.Key() }
func (SequencerSpecificMsg) String() string { return "" }
func (UnknownMetaMsg) String() string       { return "" }
func (SysExMsg) String() string             { return "" }
func (EscapeMsg) String() string            { return "" }

// BPM returns the tempo in beats per minute.
func (m SetTempoMsg) BPM() float64 {
	if m.MicrosPerQuarter == 0 {
		return 0
	}
	return 60_000_000 / float64(m.MicrosPerQuarter)
}

var (
	majorKeys = [15]string{"Cb", "Gb", "Db", "Ab", "Eb", "Bb", "F",
		"C", "G", "D", "A", "E", "B", "F#", "C#"}
	minorKeys = [15]string{"Abm", "Ebm", "Bbm", "Fm", "Cm", "Gm", "Dm",
		"Am", "Em", "Bm", "F#m", "C#m", "G#m", "D#m", "A#m"}
)

// Key returns the key name, for example "C", "F#" or "Ebm".
func (m KeySignatureMsg) Key() string {
	if m.SharpsFlats < -7 || m.SharpsFlats > 7 {
		return "?"
	}
	if m.Minor {
		return minorKeys[int(m.SharpsFlats)+7]
	}
	return majorKeys[int(m.SharpsFlats)+7]
}

// Manufacturer returns the manufacturer id of the sysex message: one byte,
// or three bytes when the first one is 0x00.
func (m SysExMsg) Manufacturer() ([]byte, bool) {
	if len(m.Data) == 0 {
		return nil, false
	}
	if m.Data[0] == 0x00 {
		if len(m.Data) < 3 {
			return nil, false
		}
		return m.Data[:3], true
	}
	return m.Data[:1], true
}

var smpteFrameRates = [4]float64{24, 25, 29.97, 30}

// Message decodes the payload according to the event kind. It fails with
// ErrMalformed when the payload is too short or holds values out of range.
// Byte slices in the returned message alias e.Data.
func (e Event) Message() (Message, error) {
	d := e.Data
	if e.IsChannel() {
		n := 2
		if e.Status == ProgramChange || e.Status == ChannelPressure {
			n = 1
		}
		if err := need(e, n); err != nil {
			return nil, err
		}
		ch := e.StatusByte & 0x0f
		switch e.Status {
		case NoteOff:
			return NoteOffMsg{ch, d[0], d[1]}, nil
		case NoteOn:
			return NoteOnMsg{ch, d[0], d[1]}, nil
		case PolyPressure:
			return PolyPressureMsg{ch, d[0], d[1]}, nil
		case ControlChange:
			return ControlChangeMsg{ch, d[0], d[1]}, nil
		case ProgramChange:
			return ProgramChangeMsg{ch, d[0]}, nil
		case ChannelPressure:
			return ChannelPressureMsg{ch, d[0]}, nil
		default:
			pitch := (int16(d[1]&0x7f)-0x40)<<7 | int16(d[0]&0x7f)
			return PitchBendMsg{ch, pitch}, nil
		}
	}

	switch e.Status {
	case SysEx:
		return SysExMsg{d}, nil
	case Escape:
		return EscapeMsg{d}, nil
	case SequenceNumber:
		if err := need(e, 2); err != nil {
			return nil, err
		}
		return SequenceNumberMsg{binary.BigEndian.Uint16(d)}, nil
	case TextEvent, Copyright, Lyrics, Marker, CueMarker:
		return TextMsg{e.Status, decodeText(d)}, nil
	case TrackName, InstrumentName, ProgramName, DeviceName:
		return NameMsg{e.Status, decodeText(d)}, nil
	case ChannelPrefix:
		if err := need(e, 1); err != nil {
			return nil, err
		}
		return ChannelPrefixMsg{d[0]}, nil
	case MIDIPort:
		if err := need(e, 1); err != nil {
			return nil, err
		}
		return MIDIPortMsg{d[0]}, nil
	case EndOfTrack:
		return EndOfTrackMsg{}, nil
	case SetTempo:
		if err := need(e, 3); err != nil {
			return nil, err
		}
		return SetTempoMsg{uint32(d[0])<<16 | uint32(d[1])<<8 | uint32(d[2])}, nil
	case SMPTEOffset:
		if err := need(e, 5); err != nil {
			return nil, err
		}
		rate := d[0] >> 5
		if int(rate) >= len(smpteFrameRates) {
			return nil, malformed("smpte offset frame rate code %d", rate)
		}
		return SMPTEOffsetMsg{
			FrameRate: smpteFrameRates[rate],
			Hours:     d[0] & 0x1f,
			Minutes:   d[1],
			Seconds:   d[2],
			Frames:    d[3],
			SubFrames: d[4],
		}, nil
	case TimeSignature:
		if err := need(e, 4); err != nil {
			return nil, err
		}
		if d[1] > 30 {
			return nil, malformed("time signature denominator exponent %d", d[1])
		}
		return TimeSignatureMsg{d[0], 1 << d[1], d[2], d[3]}, nil
	case KeySignature:
		if err := need(e, 2); err != nil {
			return nil, err
		}
		sf := int8(d[0])
		if sf < -7 || sf > 7 || d[1] > 1 {
			return nil, malformed("key signature data % x", d[:2])
		}
		return KeySignatureMsg{SharpsFlats: sf, Minor: d[1] == 1}, nil
	case SequencerSpecific:
		return SequencerSpecificMsg{d}, nil
	}
	return UnknownMetaMsg{e.Status, d}, nil
}

func need(e Event, n int) error {
	if len(e.Data) < n {
		return malformed("%s payload has %d bytes, need %d", e.Name(), len(e.Data), n)
	}
	return nil
}

// Text in midi files is extended ascii, decoded as ISO-8859-1.
func decodeText(d []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(d)
	if err != nil {
		return string(d)
	}
	return string(s)
}
