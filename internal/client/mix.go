package client

import (
	"time"

	"github.com/hearline/voicebridge/internal/audio"
)

// OutputQueueCapacity bounds the Mixer's output queue (spec.md §5).
const OutputQueueCapacity = 48

// levelerTargetPeak and levelerEMARate drive the per-stream AGC leveler
// (SPEC_FULL.md §3.1), an exponential-moving-average-of-peak controller
// grounded on _examples/original_source/client/audio.py's mix(): each
// stream's peak sample is tracked with an EMA and StreamState.Gain is
// nudged toward the ratio that would bring that peak to levelerTargetPeak,
// clamped to [0.25, 4.0]. The nudged value is written back into
// StreamState.Gain, so the per-source gain the Mixer applies is the
// leveler's running value, starting from StreamState's default of 1.0.
const (
	levelerTargetPeak = 12000.0
	levelerEMARate    = 0.05
	levelerMinGain    = 0.25
	levelerMaxGain    = 4.0
)

// leveler tracks one stream's peak-EMA for AGC gain nudging.
type leveler struct {
	peakEMA float64
}

func (l *leveler) adjust(frame audio.Frame, gain float64) float64 {
	peak := 0.0
	for _, s := range frame {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	l.peakEMA += levelerEMARate * (peak - l.peakEMA)

	if l.peakEMA < 1 {
		return gain
	}
	target := levelerTargetPeak / l.peakEMA
	next := gain + levelerEMARate*(target-gain)
	if next < levelerMinGain {
		next = levelerMinGain
	}
	if next > levelerMaxGain {
		next = levelerMaxGain
	}
	return next
}

// Mixer is the 20ms-paced sum+clip loop (spec.md §4.4). Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/voice_client.go's
// spatialize/mix path, replaced with spec.md's plain per-source-gain
// sum-and-clip (SPEC_FULL.md §9 / spec.md §9: "Dynamic polymorphism over
// native-vs-fallback mixer... the portable sum+clip is adequate").
type Mixer struct {
	table  *StreamTable
	output *BoundedQueue[audio.Frame]

	levelers map[string]*leveler

	controller *AdaptiveController

	stop chan struct{}
}

// NewMixer creates a Mixer reading from table and writing to a
// freshly-created output queue.
func NewMixer(table *StreamTable) *Mixer {
	m := &Mixer{
		table:    table,
		output:   NewBoundedQueue[audio.Frame](OutputQueueCapacity),
		levelers: make(map[string]*leveler),
		stop:     make(chan struct{}),
	}
	m.controller = NewAdaptiveController(table)
	return m
}

// Output returns the queue PlaybackSink consumes from.
func (m *Mixer) Output() *BoundedQueue[audio.Frame] {
	return m.output
}

// Controller exposes the Adaptive Jitter Controller so the Receiver/Mixer
// wiring can feed it underrun/miss deltas.
func (m *Mixer) Controller() *AdaptiveController {
	return m.controller
}

// Run executes the Mixer's tick loop until Stop is called. Each tick
// snapshots the hear-target set, pops one frame per active stream, sums
// with per-source gain, clips, and pushes the result (or silence) onto the
// output queue. Falling behind resets the deadline to now rather than
// emitting multiple frames per tick (spec.md §4.4).
func (m *Mixer) Run() {
	interval := time.Duration(audio.FrameDurationMs) * time.Millisecond
	nextDeadline := time.Now().Add(interval)

	for {
		select {
		case <-m.stop:
			return
		default:
		}

		now := time.Now()
		if nextDeadline.Before(now) {
			nextDeadline = now
		} else {
			time.Sleep(nextDeadline.Sub(now))
		}
		nextDeadline = nextDeadline.Add(interval)

		m.tick()
	}
}

// Stop halts the mixer loop.
func (m *Mixer) Stop() {
	close(m.stop)
}

func (m *Mixer) tick() {
	targets := m.table.HearTargetsSnapshot()

	sum := make([]int32, audio.FrameSamples)
	any := false
	missed := false

	for _, id := range targets {
		stream, ok := m.table.Lookup(id)
		if !ok {
			continue
		}
		frame, miss := stream.PopForMix()
		if miss {
			missed = true
		}
		if frame == nil {
			continue
		}

		lv, ok := m.levelers[id]
		if !ok {
			lv = &leveler{}
			m.levelers[id] = lv
		}
		stream.Gain = lv.adjust(frame, stream.Gain)

		scaled := frame.Scale(stream.Gain)
		for i, s := range scaled {
			sum[i] += int32(s)
		}
		any = true
	}

	out := audio.NewFrame()
	if any {
		for i, v := range sum {
			out[i] = audio.ClipSample(float64(v))
		}
	}

	m.controller.RecordTick(missed)
	m.pushOutput(out)
}

func (m *Mixer) pushOutput(frame audio.Frame) {
	m.output.Push(frame)
}
