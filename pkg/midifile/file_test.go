package midifile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"iter"
	"slices"
	"testing"
)

func TestParseHeader(t *testing.T) {
	f := mustParse(t, smfBytes(1, 96, track(eot), track(eot)))
	if f.Format != 1 || f.TicksPerQuarter != 96 || len(f.Tracks()) != 2 {
		t.Errorf("header = format %d, tpq %d, %d tracks", f.Format, f.TicksPerQuarter, len(f.Tracks()))
	}
}

func TestParseHeaderErrors(t *testing.T) {
	good := smfBytes(0, 96, track(eot))

	badTag := bytes.Clone(good)
	copy(badTag, "RIFF")

	shortHeader := append([]byte("MThd\x00\x00\x00\x04\x00\x00\x00\x01"), chunk(trackTag, eot)...)

	smpte := smfBytes(0, 0xe728, track(eot))
	zero := smfBytes(0, 0, track(eot))

	missingTrack := smfBytes(1, 96, track(eot))
	missingTrack[11] = 2 // declare two chunks, provide one

	tests := []struct {
		name string
		data []byte
	}{
		{"bad tag", badTag},
		{"header too short", shortHeader},
		{"smpte division", smpte},
		{"zero division", zero},
		{"missing chunk", missingTrack},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data, DefaultOptions()); !errors.Is(err, ErrMalformed) {
				t.Errorf("Parse() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestParseMacBinaryPrefix(t *testing.T) {
	data := append(make([]byte, macBinaryPrefix), smfBytes(0, 96, track(ev(0, 0x90, 60, 64), eot))...)
	f := mustParse(t, data)
	events := collect(t, f.Events())
	if len(events) != 2 || events[0].Status != NoteOn {
		t.Errorf("events = %v", names(events))
	}
	if Sniff(data) != ContentMacBinarySMF {
		t.Errorf("Sniff() = %v, want %v", Sniff(data), ContentMacBinarySMF)
	}
}

func TestParseLongHeaderAndForeignChunks(t *testing.T) {
	header := []byte{0, 1, 0, 3, 0, 96, 0xaa, 0xbb}
	data := chunk(headerTag, header)
	data = append(data, chunk(trackTag, track(ev(0, 0x90, 1, 1), eot))...)
	data = append(data, chunk("XFIH", []byte{1, 2, 3, 4, 5})...)
	data = append(data, chunk(trackTag, track(ev(0, 0x90, 2, 2), eot))...)

	f := mustParse(t, data)
	if len(f.Tracks()) != 2 {
		t.Fatalf("got %d tracks, want 2", len(f.Tracks()))
	}
	events := collect(t, f.Events())
	if len(events) != 3 {
		t.Errorf("events = %v, want two notes and end of track", names(events))
	}
}

func TestZeroTracks(t *testing.T) {
	f := mustParse(t, smfBytes(1, 96))
	events := collect(t, f.Events())
	if len(events) != 1 || !events[0].IsEndOfTrack() || events[0].DeltaUS != 0 {
		t.Errorf("events = %v, want a single end_of_track", events)
	}
}

func TestMissingEndOfTrackIsSynthesized(t *testing.T) {
	f := mustParse(t, smfBytes(0, 96, track(ev(0, 0x90, 60, 64), ev(10, 0x80, 60, 0))))
	events := collect(t, f.Events())
	got := names(events)
	want := []string{"note_on", "note_off", "end_of_track"}
	if !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if last := events[len(events)-1]; last.DeltaTicks != 0 || last.DeltaUS != 0 {
		t.Errorf("synthetic end of track = %v", last)
	}
}

func TestEventsAfterEndOfTrackAreDropped(t *testing.T) {
	f := mustParse(t, smfBytes(0, 96, track(ev(0, 0x90, 60, 64), eot, ev(0, 0x80, 60, 0), eot)))
	got := names(collect(t, f.Events()))
	want := []string{"note_on", "end_of_track"}
	if !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestMergeOrdering(t *testing.T) {
	a := track(ev(10, 0x90, 60, 64), eot)
	b := track(ev(5, 0x91, 62, 64), eot)
	f := mustParse(t, smfBytes(1, 96, a, b))

	events := collect(t, f.Events())
	if len(events) != 3 {
		t.Fatalf("events = %v, want 3", names(events))
	}
	wantChannels := []uint8{1, 0}
	for i, ch := range wantChannels {
		if got, _ := events[i].Channel(); got != ch {
			t.Errorf("event %d channel = %d, want %d", i, got, ch)
		}
	}
	for i, want := range []uint32{5, 5, 0} {
		if events[i].DeltaTicks != want {
			t.Errorf("event %d DeltaTicks = %d, want %d", i, events[i].DeltaTicks, want)
		}
	}
	if !events[2].IsEndOfTrack() {
		t.Errorf("last event = %s, want end_of_track", events[2].Name())
	}
}

func TestMergeTempoFromAnyTrack(t *testing.T) {
	conductor := track(ev(0x83, 0x60, 0xff, 0x51, 0x03, 0x0f, 0x42, 0x40), eot)
	notes := track(ev(0x83, 0x60, 0x90, 60, 64), ev(0x83, 0x60, 0x80, 60, 0), eot)
	f := mustParse(t, smfBytes(1, 480, conductor, notes))

	var deltas []int64
	for e, err := range f.Events() {
		if err != nil {
			t.Fatal(err)
		}
		deltas = append(deltas, e.DeltaUS)
	}
	// tempo and note on share tick 480; the note off comes 480 ticks later
	// at the new tempo
	want := []int64{500000, 0, 1000000, 0}
	if !slices.Equal(deltas, want) {
		t.Errorf("DeltaUS = %v, want %v", deltas, want)
	}

	length, err := f.LengthMicros()
	if err != nil || length != 1500000 {
		t.Errorf("LengthMicros() = %d, %v, want 1500000", length, err)
	}
}

func TestMergeKeepsLatestEndOfTrack(t *testing.T) {
	short := track(ev(0, 0x90, 60, 64), eot)
	long := track(ev(0, 0x91, 60, 64), ev(0x60, 0xff, 0x2f, 0x00))
	f := mustParse(t, smfBytes(1, 96, short, long))
	events := collect(t, f.Events())
	last := events[len(events)-1]
	if !last.IsEndOfTrack() || last.DeltaTicks != 0x60 {
		t.Errorf("last event = %v, want end_of_track 96 ticks later", last)
	}
	count := 0
	for _, e := range events {
		if e.IsEndOfTrack() {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d end_of_track events, want 1", count)
	}
}

func TestFormat2(t *testing.T) {
	f := mustParse(t, smfBytes(2, 96, track(ev(0, 0x90, 60, 64), eot), track(eot)))

	var gotErr error
	for _, err := range f.Events() {
		gotErr = err
	}
	if !errors.Is(gotErr, ErrFormat2Merge) {
		t.Errorf("merged iteration error = %v, want ErrFormat2Merge", gotErr)
	}
	if _, err := f.LengthMicros(); !errors.Is(err, ErrFormat2Merge) {
		t.Errorf("LengthMicros() error = %v, want ErrFormat2Merge", err)
	}

	tr, err := f.Track(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := names(collect(t, tr.Events())); !slices.Equal(got, []string{"note_on", "end_of_track"}) {
		t.Errorf("track 0 events = %v", got)
	}
	if _, err := f.Track(2); !errors.Is(err, ErrNoTrack) {
		t.Errorf("Track(2) error = %v, want ErrNoTrack", err)
	}
}

func TestFormat0WithSeveralTracksIsMerged(t *testing.T) {
	f := mustParse(t, smfBytes(0, 96, track(ev(4, 0x90, 1, 1), eot), track(ev(2, 0x90, 2, 2), eot)))
	events := collect(t, f.Events())
	if len(events) != 3 || events[0].Data[0] != 2 {
		t.Errorf("events = %v", events)
	}
}

func TestTruncatedTrackStopsWithError(t *testing.T) {
	f := mustParse(t, smfBytes(0, 96, track(ev(0, 0x90, 60, 64), ev(0, 0x90, 61))))
	var seen []string
	var gotErr error
	for e, err := range f.Events() {
		if err != nil {
			gotErr = err
			break
		}
		seen = append(seen, e.Name())
	}
	if !errors.Is(gotErr, ErrTruncated) {
		t.Errorf("error = %v, want ErrTruncated", gotErr)
	}
	if !slices.Equal(seen, []string{"note_on"}) {
		t.Errorf("events before the error = %v", seen)
	}
}

func testFile() []byte {
	big := make([]byte, 200)
	sysex := AppendVarLen([]byte{0x00, 0xf0}, uint32(len(big)))
	sysex = append(sysex, big...)
	return smfBytes(1, 480,
		track(ev(0, 0xff, 0x03, 0x04, 'b', 'a', 's', 's'), ev(0, 0xc0, 33), ev(0x60, 0x90, 40, 90), ev(0x60, 40, 0), eot),
		track(sysex, ev(0x30, 0x91, 70, 80), ev(0x30, 0xb1, 7, 100), ev(0x83, 0x60, 0x81, 70, 0), eot),
	)
}

func TestStreamingMatchesMemory(t *testing.T) {
	data := testFile()
	path := writeTemp(t, data)

	want := collect(t, mustParse(t, data).Events())
	for _, size := range []int{0, 1, 16, 100, 4096} {
		f, err := Open(path, Options{BufferSize: size})
		if err != nil {
			t.Fatalf("Open(buffer %d) error = %v", size, err)
		}
		got := collect(t, f.Events())
		if len(got) != len(want) {
			t.Fatalf("buffer %d: %d events, want %d", size, len(got), len(want))
		}
		for i := range want {
			if got[i].String() != want[i].String() || !bytes.Equal(got[i].Data, want[i].Data) {
				t.Errorf("buffer %d event %d = %v, want %v", size, i, got[i], want[i])
			}
		}
	}
}

func TestChunkLongerThanFile(t *testing.T) {
	data := smfBytes(0, 96, track(ev(0, 0x90, 60, 64), eot))
	// Declare ten more track bytes than the file holds.
	length := binary.BigEndian.Uint32(data[18:22])
	binary.BigEndian.PutUint32(data[18:22], length+10)
	path := writeTemp(t, data)

	if _, err := Parse(data, DefaultOptions()); !errors.Is(err, ErrTruncated) {
		t.Errorf("Parse() error = %v, want ErrTruncated", err)
	}
	for _, size := range []int{0, 1, 100} {
		if _, err := Open(path, Options{BufferSize: size}); !errors.Is(err, ErrTruncated) {
			t.Errorf("Open(buffer %d) error = %v, want ErrTruncated", size, err)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open("does-not-exist.mid", DefaultOptions()); err == nil {
		t.Error("Open() on a missing file should fail")
	}
}

func TestConcurrentTraversals(t *testing.T) {
	f, err := Open(writeTemp(t, testFile()), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	want := collect(t, f.Events())

	next1, stop1 := iter.Pull2(f.Events())
	defer stop1()
	next2, stop2 := iter.Pull2(f.Events())
	defer stop2()

	for i := range want {
		e1, err1, ok1 := next1()
		e2, err2, ok2 := next2()
		if !ok1 || !ok2 || err1 != nil || err2 != nil {
			t.Fatalf("step %d: ok %v/%v err %v/%v", i, ok1, ok2, err1, err2)
		}
		if e1.String() != want[i].String() || e2.String() != want[i].String() {
			t.Errorf("step %d: %v / %v, want %v", i, e1, e2, want[i])
		}
	}
}

func TestBorrowReusesEvent(t *testing.T) {
	f := mustParse(t, testFile())
	var first *Event
	count := 0
	for e, err := range f.Tracks()[0].Borrow() {
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = e
		} else if e != first && !e.IsEndOfTrack() {
			t.Error("Borrow() yielded a new event object")
		}
		count++
	}
	if count != 5 {
		t.Errorf("got %d events, want 5", count)
	}

	owned := collect(t, f.Tracks()[0].Events())
	if string(owned[0].Data) != "bass" {
		t.Errorf("first owned event data = %q, want %q", owned[0].Data, "bass")
	}
}

func TestEarlyBreak(t *testing.T) {
	f, err := Open(writeTemp(t, testFile()), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		n := 0
		for _, err := range f.Events() {
			if err != nil {
				t.Fatal(err)
			}
			n++
			if n == 2 {
				break
			}
		}
	}
	if _, err := f.LengthMicros(); err != nil {
		t.Errorf("LengthMicros() after abandoned traversals error = %v", err)
	}
}
