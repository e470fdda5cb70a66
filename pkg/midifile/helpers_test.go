package midifile

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// track concatenates raw event bytes into track data.
func track(events ...[]byte) []byte {
	var out []byte
	for _, e := range events {
		out = append(out, e...)
	}
	return out
}

func ev(b ...byte) []byte { return b }

var eot = ev(0x00, 0xff, 0x2f, 0x00)

func chunk(tag string, data []byte) []byte {
	out := []byte(tag)
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	return append(out, data...)
}

// smfBytes builds a file with the given header fields and one MTrk chunk per
// track.
func smfBytes(format, ticksPerQuarter uint16, tracks ...[]byte) []byte {
	header := binary.BigEndian.AppendUint16(nil, format)
	header = binary.BigEndian.AppendUint16(header, uint16(len(tracks)))
	header = binary.BigEndian.AppendUint16(header, ticksPerQuarter)
	out := chunk(headerTag, header)
	for _, t := range tracks {
		out = append(out, chunk(trackTag, t)...)
	}
	return out
}

func mustParse(t *testing.T, data []byte) *File {
	t.Helper()
	f, err := Parse(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return f
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mid")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func collect(t *testing.T, seq func(func(Event, error) bool)) []Event {
	t.Helper()
	var out []Event
	for e, err := range seq {
		if err != nil {
			t.Fatalf("iteration error = %v", err)
		}
		out = append(out, e)
	}
	return out
}

func names(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Name()
	}
	return out
}
