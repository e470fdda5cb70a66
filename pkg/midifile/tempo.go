package midifile

// DefaultTempo is the tempo in effect until the first set tempo event:
// 500000 microseconds per quarter note, 120 bpm.
const DefaultTempo uint32 = 500_000

// DeltaMicros converts a tick delta to microseconds, rounded to the nearest
// microsecond with integer arithmetic only.
func DeltaMicros(ticks uint32, ticksPerQuarter uint16, tempo uint32) int64 {
	tpq := uint64(ticksPerQuarter)
	return int64((uint64(ticks)*uint64(tempo) + tpq/2) / tpq)
}

// Timeline tracks the current tempo while walking an event sequence and
// converts tick deltas to microseconds.
type Timeline struct {
	ticksPerQuarter uint16
	tempo           uint32
}

func NewTimeline(ticksPerQuarter uint16) *Timeline {
	return &Timeline{ticksPerQuarter: ticksPerQuarter, tempo: DefaultTempo}
}

// Tempo returns the tempo in effect, in microseconds per quarter note.
func (t *Timeline) Tempo() uint32 { return t.tempo }

// Apply sets ev.DeltaUS with the current tempo. When ev is a set tempo event
// the new tempo takes effect for the events after it, not for ev itself.
func (t *Timeline) Apply(ev *Event) error {
	ev.DeltaUS = DeltaMicros(ev.DeltaTicks, t.ticksPerQuarter, t.tempo)
	if ev.Status != SetTempo {
		return nil
	}
	msg, err := ev.Message()
	if err != nil {
		return err
	}
	t.tempo = msg.(SetTempoMsg).MicrosPerQuarter
	return nil
}
