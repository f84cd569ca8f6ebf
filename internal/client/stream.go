package client

import (
	"github.com/hearline/voicebridge/internal/audio"
)

// PLCDecay is the geometric decay applied to concealment frames synthesized
// from the last real frame (spec.md §4.2).
const PLCDecay = 0.85

// DefaultTargetFill is StreamState's startup and reset jitter target
// (spec.md §3).
const DefaultTargetFill = 10

// LegacyQueueCapacity bounds StreamState.legacy_queue (spec.md §3: "bounded
// FIFO... capacity JITTER_MAX_SIZE").
const LegacyQueueCapacity = JitterMaxSize

// StreamState couples one remote sender's JitterBuffer with last-frame PLC
// and per-source gain (spec.md §3/§4.2). Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/jitter_buffer.go's
// PlayNextPacket PLC fallback, generalized to add the legacy (no-seq)
// queue and the 30/70 post-PLC crossfade spec.md requires.
type StreamState struct {
	jitterBuffer *JitterBuffer
	legacyQueue  []audio.Frame

	lastFrame  audio.Frame
	havePrior  bool
	plcActive  bool

	// Gain is the per-source linear gain the Mixer applies (spec.md §3),
	// default 1.0. The AGC leveler (SPEC_FULL.md §3.1) nudges this value
	// between mixer ticks rather than replacing it.
	Gain float64
}

// NewStreamState creates a StreamState with the given initial target fill.
func NewStreamState(targetFill int) *StreamState {
	return &StreamState{
		jitterBuffer: NewJitterBuffer(targetFill),
		Gain:         1.0,
	}
}

// SetTargetFill propagates a new jitter target to this stream's buffer
// (spec.md §4.10: "applied to every existing StreamState").
func (s *StreamState) SetTargetFill(fill int) {
	s.jitterBuffer.SetTargetFill(fill)
}

// Push implements spec.md §4.2's push: a nil seq (legacy wire form) enters
// the bounded legacy_queue; otherwise the frame is delegated to the
// jitter buffer.
func (s *StreamState) Push(seq *audio.SequenceNumber, frame audio.Frame) {
	if seq == nil {
		if len(s.legacyQueue) >= LegacyQueueCapacity {
			s.legacyQueue = s.legacyQueue[1:]
		}
		s.legacyQueue = append(s.legacyQueue, frame)
		return
	}
	s.jitterBuffer.Push(*seq, frame)
}

// PopForMix implements spec.md §4.2's pop_for_mix: jitter buffer first,
// then the legacy queue, then PLC decay of the last frame, then nil.
// missDetected is forwarded from the jitter buffer for the Adaptive Jitter
// Controller's miss_rate accounting.
func (s *StreamState) PopForMix() (frame audio.Frame, missDetected bool) {
	if f, ok, miss := s.jitterBuffer.Pop(); ok {
		if s.plcActive && s.havePrior {
			f = audio.Crossfade(s.lastFrame, f, 0.3, 0.7)
		}
		s.plcActive = false
		s.lastFrame = f
		s.havePrior = true
		return f, miss
	}

	if len(s.legacyQueue) > 0 {
		f := s.legacyQueue[0]
		s.legacyQueue = s.legacyQueue[1:]
		s.plcActive = false
		s.lastFrame = f
		s.havePrior = true
		return f, false
	}

	if s.havePrior {
		f := s.lastFrame.Scale(PLCDecay)
		s.plcActive = true
		s.lastFrame = f
		return f, false
	}

	return nil, false
}

// PLCActive reports whether the most recent emission was concealment.
func (s *StreamState) PLCActive() bool {
	return s.plcActive
}
