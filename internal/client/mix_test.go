package client

import (
	"testing"

	"github.com/hearline/voicebridge/internal/audio"
)

func fullFrame(v int16) audio.Frame {
	f := audio.NewFrame()
	for i := range f {
		f[i] = v
	}
	return f
}

// TestMixerSumsAndClips confirms two active streams sum sample-wise with
// clipping to int16 range (spec.md §4.4).
func TestMixerSumsAndClips(t *testing.T) {
	table := NewStreamTable()
	table.SetHearTargets([]string{"A", "B"})
	// One frame per stream: a fill target of 1 lets it emit on the first tick.
	table.SetTargetFill(1)

	seqA := audio.SequenceNumber(0)
	seqB := audio.SequenceNumber(0)
	sA := table.getOrCreate("A")
	sB := table.getOrCreate("B")

	sA.Push(&seqA, fullFrame(30000))
	sB.Push(&seqB, fullFrame(30000))

	m := NewMixer(table)
	m.tick()

	out, ok := m.Output().Pop(0)
	if !ok {
		t.Fatal("expected a mixed frame on the output queue")
	}
	for _, s := range out {
		if s != 32767 {
			t.Fatalf("expected clipping to int16 max, got %d", s)
		}
	}
}

// TestMixerEmitsSilenceWhenNoStreamsActive confirms a tick with nothing to
// mix still produces a (silent) frame rather than skipping output.
func TestMixerEmitsSilenceWhenNoStreamsActive(t *testing.T) {
	table := NewStreamTable()
	m := NewMixer(table)
	m.tick()

	out, ok := m.Output().Pop(0)
	if !ok {
		t.Fatal("expected a frame even with no active streams")
	}
	for _, s := range out {
		if s != 0 {
			t.Fatalf("expected silence, got sample %d", s)
		}
	}
}

// TestAdaptiveControllerIncreasesTargetOnHighUnderrun is spec.md §8's
// scenario 4: underrun_rate > 10% over a 200-tick window should push
// target_fill from 10 to 11.
func TestAdaptiveControllerIncreasesTargetOnHighUnderrun(t *testing.T) {
	table := NewStreamTable()
	c := NewAdaptiveController(table)

	for i := 0; i < AdaptiveWindowTicks; i++ {
		if i < AdaptiveWindowTicks/5 { // 20% of callbacks underrun
			c.RecordCallback()
			c.RecordUnderrun()
		} else {
			c.RecordCallback()
		}
		c.RecordTick(false)
	}

	if got := table.TargetFill(); got != DefaultTargetFill+1 {
		t.Fatalf("target_fill = %d, want %d", got, DefaultTargetFill+1)
	}
}

// TestAdaptiveControllerDecreasesTargetWhenHealthy confirms the
// low-underrun, low-miss path decrements target_fill.
func TestAdaptiveControllerDecreasesTargetWhenHealthy(t *testing.T) {
	table := NewStreamTable()
	c := NewAdaptiveController(table)

	for i := 0; i < AdaptiveWindowTicks; i++ {
		c.RecordCallback()
		c.RecordTick(false)
	}

	if got := table.TargetFill(); got != DefaultTargetFill-1 {
		t.Fatalf("target_fill = %d, want %d", got, DefaultTargetFill-1)
	}
}

// TestAdaptiveControllerCapsAtBounds confirms target_fill never exceeds
// [8, 14] regardless of how many windows push in one direction.
func TestAdaptiveControllerCapsAtBounds(t *testing.T) {
	table := NewStreamTable()
	c := NewAdaptiveController(table)

	for window := 0; window < 10; window++ {
		for i := 0; i < AdaptiveWindowTicks; i++ {
			c.RecordCallback()
			c.RecordUnderrun()
			c.RecordTick(true)
		}
	}

	if got := table.TargetFill(); got != maxTargetFill {
		t.Fatalf("target_fill = %d, want capped at %d", got, maxTargetFill)
	}
}
