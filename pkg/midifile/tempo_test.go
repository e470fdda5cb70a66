package midifile

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDeltaMicros(t *testing.T) {
	tests := []struct {
		name  string
		ticks uint32
		tpq   uint16
		tempo uint32
		want  int64
	}{
		{"one quarter at 120 bpm", 480, 480, 500000, 500000},
		{"one quarter at 60 bpm", 480, 480, 1000000, 1000000},
		{"zero ticks", 0, 96, 500000, 0},
		{"rounds half up", 1, 2, 1, 1},
		{"rounds to nearest", 1, 3, 500000, 166667},
		{"large values", 0x0fffffff, 1, 0xffffff, 0x0fffffff * 0xffffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeltaMicros(tt.ticks, tt.tpq, tt.tempo); got != tt.want {
				t.Errorf("DeltaMicros() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTempoChangeAppliesToNextEvent(t *testing.T) {
	f := mustParse(t, smfBytes(0, 480, track(
		ev(0x83, 0x60, 0x90, 60, 64),                      // 480 ticks
		ev(0x83, 0x60, 0xff, 0x51, 0x03, 0x0f, 0x42, 0x40), // tempo 1000000 after 480 ticks
		ev(0x83, 0x60, 0x80, 60, 0),                       // 480 ticks
		eot,
	)))

	events := collect(t, f.Events())
	want := []int64{500000, 500000, 1000000, 0}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.DeltaUS != want[i] {
			t.Errorf("event %d (%s) DeltaUS = %d, want %d", i, e.Name(), e.DeltaUS, want[i])
		}
	}
}

func TestTimelineApply(t *testing.T) {
	tl := NewTimeline(96)
	if tl.Tempo() != DefaultTempo {
		t.Fatalf("Tempo() = %d, want %d", tl.Tempo(), DefaultTempo)
	}
	tempo := metaEvent(SetTempo, 0x03, 0x0d, 0x40) // 200000
	tempo.DeltaTicks = 96
	if err := tl.Apply(&tempo); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if tempo.DeltaUS != 500000 || tl.Tempo() != 200000 {
		t.Errorf("DeltaUS = %d, Tempo() = %d", tempo.DeltaUS, tl.Tempo())
	}

	short := metaEvent(SetTempo, 0x03)
	if err := tl.Apply(&short); err == nil {
		t.Error("Apply() with a short tempo payload should fail")
	}
}

func TestProperty_DeltaMicrosMatchesRoundedDivision(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("result is the nearest integer to ticks*tempo/tpq", prop.ForAll(
		func(ticks uint32, tpq uint16, tempo uint32) bool {
			got := DeltaMicros(ticks, tpq, tempo)
			exact := uint64(ticks) * uint64(tempo)
			// got*tpq must be within half a tpq of the exact product
			lo := uint64(got) * uint64(tpq)
			diff := int64(exact) - int64(lo)
			return 2*diff < int64(tpq) && 2*diff >= -int64(tpq)
		},
		gen.UInt32Range(0, 1<<20),
		gen.UInt16Range(1, 32767),
		gen.UInt32Range(0, 1<<24-1),
	))

	properties.TestingRun(t)
}
