package playback

import (
	"context"
	"errors"
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/james-see/midiseq/pkg/midifile"
)

// fakeClock advances only when slept on. Every sleep overshoots by
// oversleep to model a coarse timer.
type fakeClock struct {
	now       time.Time
	oversleep time.Duration
	sleeps    []time.Duration
	block     bool
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1000, 0)} }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d + c.oversleep)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	if c.block {
		return ch
	}
	c.Sleep(d)
	ch <- c.now
	return ch
}

func events(deltas ...int64) iter.Seq2[*midifile.Event, error] {
	return func(yield func(*midifile.Event, error) bool) {
		for _, d := range deltas {
			if !yield(&midifile.Event{Status: midifile.NoteOn, StatusByte: 0x90, Data: []byte{60, 64}, DeltaUS: d}, nil) {
				return
			}
		}
	}
}

func timestamps(t *testing.T, seq iter.Seq2[*midifile.Event, error]) []int64 {
	t.Helper()
	var out []int64
	for ev, err := range seq {
		if err != nil {
			t.Fatalf("playback error = %v", err)
		}
		out = append(out, ev.TimestampUS)
	}
	return out
}

func TestPlayWaitsForEachEvent(t *testing.T) {
	clock := newFakeClock()
	s := New(clock)

	got := timestamps(t, s.Play(events(1000, 0, 2000, 500)))
	if want := []int64{1000, 1000, 3000, 3500}; !slices.Equal(got, want) {
		t.Errorf("timestamps = %v, want %v", got, want)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 500 * time.Microsecond}
	if !slices.Equal(clock.sleeps, want) {
		t.Errorf("sleeps = %v, want %v", clock.sleeps, want)
	}
}

func TestPlayCorrectsDrift(t *testing.T) {
	clock := newFakeClock()
	clock.oversleep = 300 * time.Microsecond

	timestamps(t, New(clock).Play(events(1000, 1000, 1000)))
	want := []time.Duration{1000 * time.Microsecond, 700 * time.Microsecond, 700 * time.Microsecond}
	if !slices.Equal(clock.sleeps, want) {
		t.Errorf("sleeps = %v, want %v", clock.sleeps, want)
	}
	// each event ends up at most one oversleep late, never early
	if elapsed := clock.now.Sub(time.Unix(1000, 0)); elapsed != 3300*time.Microsecond {
		t.Errorf("elapsed = %v, want 3.3ms", elapsed)
	}
}

func TestPlayNeverWaitsWhenLate(t *testing.T) {
	clock := newFakeClock()
	clock.oversleep = 5 * time.Millisecond

	timestamps(t, New(clock).Play(events(1000, 1000, 1000, 10000)))
	want := []time.Duration{time.Millisecond, 7 * time.Millisecond}
	if !slices.Equal(clock.sleeps, want) {
		t.Errorf("sleeps = %v, want %v", clock.sleeps, want)
	}
}

func TestPlayPassesErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(*midifile.Event, error) bool) {
		if yield(&midifile.Event{DeltaUS: 10}, nil) {
			yield(nil, boom)
		}
	}

	var gotErr error
	count := 0
	for _, err := range New(newFakeClock()).Play(seq) {
		if err != nil {
			gotErr = err
			break
		}
		count++
	}
	if count != 1 || !errors.Is(gotErr, boom) {
		t.Errorf("got %d events and error %v", count, gotErr)
	}
}

func TestPlayContext(t *testing.T) {
	clock := newFakeClock()
	got := timestamps(t, New(clock).PlayContext(context.Background(), events(250, 250)))
	if want := []int64{250, 500}; !slices.Equal(got, want) {
		t.Errorf("timestamps = %v, want %v", got, want)
	}
}

func TestPlayContextCancelsPendingWait(t *testing.T) {
	clock := newFakeClock()
	clock.block = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gotErr error
	count := 0
	for _, err := range New(clock).PlayContext(ctx, events(0, 1000, 1000)) {
		if err != nil {
			gotErr = err
			break
		}
		count++
		cancel()
	}
	if count != 1 || !errors.Is(gotErr, context.Canceled) {
		t.Errorf("got %d events and error %v, want 1 and context.Canceled", count, gotErr)
	}
}

func TestPlayContextDeadlineDuringWait(t *testing.T) {
	clock := newFakeClock()
	clock.block = true
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var gotErr error
	for _, err := range New(clock).PlayContext(ctx, events(time.Hour.Microseconds())) {
		gotErr = err
	}
	if !errors.Is(gotErr, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", gotErr)
	}
}

func TestRunWithFile(t *testing.T) {
	// 480 ticks per quarter, one note a quarter note long at 120 bpm
	data := []byte{
		'M', 'T', 'h', 'd', 0, 0, 0, 6, 0, 0, 0, 1, 0x01, 0xe0,
		'M', 'T', 'r', 'k', 0, 0, 0, 13,
		0x00, 0x90, 60, 64,
		0x83, 0x60, 0x80, 60, 0,
		0x00, 0xff, 0x2f, 0x00,
	}
	f, err := midifile.Parse(data, midifile.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	clock := newFakeClock()
	var got []string
	err = New(clock).Run(context.Background(), f.Borrow(), func(ev *midifile.Event) error {
		got = append(got, ev.Name())
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := []string{"note_on", "note_off", "end_of_track"}; !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if elapsed := clock.now.Sub(time.Unix(1000, 0)); elapsed != 500*time.Millisecond {
		t.Errorf("elapsed = %v, want 500ms", elapsed)
	}
}

func TestRunStopsOnHandlerError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := New(newFakeClock()).Run(context.Background(), events(1, 2, 3), func(*midifile.Event) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Run() = %v after %d calls", err, calls)
	}
}

func TestCopiesAreDistinct(t *testing.T) {
	seq := func(yield func(midifile.Event, error) bool) {
		for i := range 3 {
			if !yield(midifile.Event{DeltaUS: int64(i)}, nil) {
				return
			}
		}
	}
	var kept []*midifile.Event
	for ev, err := range New(newFakeClock()).Play(Copies(seq)) {
		if err != nil {
			t.Fatal(err)
		}
		kept = append(kept, ev)
	}
	for i, ev := range kept {
		if ev.DeltaUS != int64(i) {
			t.Errorf("kept event %d has DeltaUS %d", i, ev.DeltaUS)
		}
	}
}
