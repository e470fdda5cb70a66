package midifile

import (
	"cmp"
	"iter"
	"slices"
)

// cursor walks one track during a merge. ticks is the position of the
// current event since the start of the track.
type cursor struct {
	next  func() (*Event, error, bool)
	stop  func()
	event *Event
	ticks uint64
}

func (c *cursor) advance() error {
	ev, err, ok := c.next()
	if !ok {
		return ErrTruncated
	}
	if err != nil {
		return err
	}
	c.event = ev
	c.ticks += uint64(ev.DeltaTicks)
	return nil
}

func byTicks(a, b *cursor) int { return cmp.Compare(a.ticks, b.ticks) }

// merged interleaves all tracks into one sequence ordered by tick position.
// Each yielded event has its DeltaTicks rewritten relative to the previously
// yielded event. Events at the same tick keep track order. Only the end of
// track of the last track to finish is yielded.
func (f *File) merged() iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		all := make([]*cursor, 0, len(f.tracks))
		defer func() {
			for _, c := range all {
				c.stop()
			}
		}()

		for _, t := range f.tracks {
			next, stop := iter.Pull2(terminate(t.raw()))
			c := &cursor{next: next, stop: stop}
			all = append(all, c)
			if err := c.advance(); err != nil {
				yield(nil, err)
				return
			}
		}

		active := slices.Clone(all)
		var now uint64
		for len(active) > 0 {
			c := slices.MinFunc(active, byTicks)
			ev := c.event
			ev.DeltaTicks = uint32(c.ticks - now)

			if ev.Status == EndOfTrack {
				active = slices.DeleteFunc(active, func(x *cursor) bool { return x == c })
				if len(active) == 0 {
					yield(ev, nil)
				}
				continue
			}

			if !yield(ev, nil) {
				return
			}
			now = c.ticks
			if err := c.advance(); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}
