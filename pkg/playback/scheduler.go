// Package playback paces a sequence of MIDI file events in real time.
//
// The scheduler keeps the ideal elapsed time of the sequence (the sum of the
// events' DeltaUS) and compares it with the time actually elapsed since the
// first event was requested. It only waits for the difference, so late wake
// ups are made up by the following events instead of accumulating.
package playback

import (
	"context"
	"iter"
	"time"

	"github.com/charmbracelet/log"

	"github.com/james-see/midiseq/pkg/midifile"
)

// lagWarning is how far behind schedule an event may be before it is logged.
const lagWarning = 20 * time.Millisecond

// Scheduler paces events. The zero value uses the system clock and does not
// log. A Scheduler keeps no state between traversals.
type Scheduler struct {
	Clock  Clock
	Logger *log.Logger
}

// New returns a Scheduler using clock, or the system clock when clock is nil.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{Clock: clock}
}

func (s *Scheduler) clock() Clock {
	if s.Clock == nil {
		return SystemClock()
	}
	return s.Clock
}

// pacer tracks one traversal.
type pacer struct {
	clock    Clock
	logger   *log.Logger
	start    time.Time
	started  bool
	midiTime int64
}

// wait sets the event timestamp and returns how long to wait before it is
// due. The result is never negative.
func (p *pacer) wait(ev *midifile.Event) time.Duration {
	now := p.clock.Now()
	if !p.started {
		p.start = now
		p.started = true
	}
	if ev.DeltaUS > 0 {
		p.midiTime += ev.DeltaUS
	}
	ev.TimestampUS = p.midiTime

	d := time.Duration(p.midiTime)*time.Microsecond - now.Sub(p.start)
	if d < -lagWarning && p.logger != nil {
		p.logger.Debug("behind schedule", "event", ev.Name(), "lag", -d)
	}
	return max(d, 0)
}

// Play paces seq by blocking the calling goroutine. Each event is yielded
// with TimestampUS set to its position in the sequence, no earlier than that
// much time after the first event.
func (s *Scheduler) Play(seq iter.Seq2[*midifile.Event, error]) iter.Seq2[*midifile.Event, error] {
	return func(yield func(*midifile.Event, error) bool) {
		p := &pacer{clock: s.clock(), logger: s.Logger}
		for ev, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if d := p.wait(ev); d > 0 {
				p.clock.Sleep(d)
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// PlayContext paces seq like Play, but waits in a select so that
// cancelling ctx interrupts a pending wait. Cancellation is reported as
// ctx.Err() in place of the next event. The logger in ctx, if any, is used
// instead of s.Logger.
func (s *Scheduler) PlayContext(ctx context.Context, seq iter.Seq2[*midifile.Event, error]) iter.Seq2[*midifile.Event, error] {
	return func(yield func(*midifile.Event, error) bool) {
		logger := s.Logger
		if l, ok := ctx.Value(log.ContextKey).(*log.Logger); ok {
			logger = l
		}
		p := &pacer{clock: s.clock(), logger: logger}
		for ev, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if d := p.wait(ev); d > 0 {
				select {
				case <-ctx.Done():
					yield(nil, ctx.Err())
					return
				case <-p.clock.After(d):
				}
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Run plays seq with PlayContext and calls fn for every event. It stops at
// the first error from the sequence, the context or fn.
func (s *Scheduler) Run(ctx context.Context, seq iter.Seq2[*midifile.Event, error], fn func(*midifile.Event) error) error {
	logger := log.FromContext(ctx)
	count := 0
	for ev, err := range s.PlayContext(ctx, seq) {
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
		count++
	}
	logger.Debug("playback finished", "events", count)
	return nil
}

// Copies adapts an owned event sequence, such as File.Events, to the
// scheduler. Every yielded pointer refers to a distinct event that stays
// valid after the iteration step.
func Copies(seq iter.Seq2[midifile.Event, error]) iter.Seq2[*midifile.Event, error] {
	return func(yield func(*midifile.Event, error) bool) {
		for ev, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(&ev, nil) {
				return
			}
		}
	}
}
