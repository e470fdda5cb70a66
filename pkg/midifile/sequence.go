package midifile

import "iter"

// terminate passes events through up to and including the first end of
// track event and drops the rest. When src runs out without one, a
// synthetic end of track with zero delta is appended.
func terminate(src iter.Seq2[*Event, error]) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for ev, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) || ev.Status == EndOfTrack {
				return
			}
		}
		yield(endOfTrack(), nil)
	}
}

// timed sets DeltaUS on every event, following set tempo events in the
// order they are seen.
func timed(src iter.Seq2[*Event, error], ticksPerQuarter uint16) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		tl := NewTimeline(ticksPerQuarter)
		for ev, err := range src {
			if err == nil {
				err = tl.Apply(ev)
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func compose(src iter.Seq2[*Event, error], ticksPerQuarter uint16) iter.Seq2[*Event, error] {
	return timed(terminate(src), ticksPerQuarter)
}

// owned copies every borrowed event into an independent value.
func owned(src iter.Seq2[*Event, error]) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for ev, err := range src {
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev.Clone(), nil) {
				return
			}
		}
	}
}

func empty(func(*Event, error) bool) {}

func failed(err error) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		yield(nil, err)
	}
}
