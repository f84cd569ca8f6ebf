// Package client implements the data-plane endpoint: per-sender jitter
// buffering and PLC, decoding, mixing, device I/O, capture-side
// preprocessing/encode/send, and the control-plane client. Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client, generalized from its
// heap-based JitterBuffer/VoiceClient pair to the map-plus-watermark model
// spec.md §4.1 requires.
package client

import (
	"github.com/hearline/voicebridge/internal/audio"
)

// JitterMaxSize bounds JitterBuffer occupancy (spec.md §3).
const JitterMaxSize = 256

// JitterBuffer orders, delays, and conceals loss of decoded frames for one
// remote sender (spec.md §4.1). Unlike
// _examples/Zokiio-ovc/voice-client/internal/client/jitter_buffer.go's
// container/heap, this is a sparse map plus an expected-sequence watermark:
// the teacher's heap pops "next item or wait", but spec.md's pop must also
// be able to *skip forward* past a gap once the buffer is full, which a
// strict min-heap pop-order doesn't directly express without also tracking
// "is the min item actually expected_seq or something later".
type JitterBuffer struct {
	frames      map[audio.SequenceNumber]audio.Frame
	expectedSeq audio.SequenceNumber
	hasExpected bool
	targetFill  int
}

// NewJitterBuffer creates an empty buffer with the given initial target
// fill (spec.md §3's StreamState.target_fill, initially 10).
func NewJitterBuffer(targetFill int) *JitterBuffer {
	return &JitterBuffer{
		frames:     make(map[audio.SequenceNumber]audio.Frame),
		targetFill: targetFill,
	}
}

// SetTargetFill updates the desired pre-drain occupancy, per the Adaptive
// Jitter Controller (spec.md §4.10).
func (j *JitterBuffer) SetTargetFill(fill int) {
	j.targetFill = fill
}

// Len reports current occupancy.
func (j *JitterBuffer) Len() int {
	return len(j.frames)
}

// Push stores frame at seq, per spec.md §4.1. Frames too far behind the
// current watermark are discarded; on overflow the entry with smallest
// signed distance to expected_seq is evicted.
func (j *JitterBuffer) Push(seq audio.SequenceNumber, frame audio.Frame) {
	if j.hasExpected && audio.Distance(seq, j.expectedSeq) < -JitterMaxSize {
		return
	}

	j.frames[seq] = frame

	if len(j.frames) > JitterMaxSize {
		j.evictFarthestPast()
	}
}

func (j *JitterBuffer) evictFarthestPast() {
	var victim audio.SequenceNumber
	best := int32(1) << 30
	first := true
	for seq := range j.frames {
		d := int32(seq)
		if j.hasExpected {
			d = audio.Distance(seq, j.expectedSeq)
		}
		if first || d < best {
			best = d
			victim = seq
			first = false
		}
	}
	delete(j.frames, victim)
}

// Pop implements spec.md §4.1's pop contract. Until the first emission it
// returns nothing while occupancy is below target_fill (startup delay), then
// starts at the lowest buffered key. After that: emit the expected sequence
// if present and advance by one; if absent and occupancy is below
// target_fill, wait (return nil); if occupancy has reached target_fill,
// skip forward to the nearest not-before-expected stored key, or else
// just advance the watermark by one with no output.
//
// missDetected reports whether this call registered a "mixed miss" (an
// absent expected frame at or above target_fill), for the Adaptive Jitter
// Controller's miss_rate accounting (spec.md §4.10).
func (j *JitterBuffer) Pop() (frame audio.Frame, ok bool, missDetected bool) {
	if !j.hasExpected {
		// Nothing emitted yet: hold everything until the buffer first
		// reaches target_fill, with no watermark to advance.
		if len(j.frames) == 0 || len(j.frames) < j.targetFill {
			return nil, false, false
		}
		j.expectedSeq = j.lowestKey()
		j.hasExpected = true
	}

	if f, present := j.frames[j.expectedSeq]; present {
		delete(j.frames, j.expectedSeq)
		j.expectedSeq = j.expectedSeq.Add(1)
		return f, true, false
	}

	if len(j.frames) < j.targetFill {
		return nil, false, false
	}

	// Buffer full enough to declare loss: skip to nearest stored key that
	// is not before expected_seq.
	nextKey, found := j.nearestNotBefore(j.expectedSeq)
	if !found {
		j.expectedSeq = j.expectedSeq.Add(1)
		return nil, false, true
	}

	f := j.frames[nextKey]
	delete(j.frames, nextKey)
	j.expectedSeq = nextKey.Add(1)
	return f, true, true
}

func (j *JitterBuffer) lowestKey() audio.SequenceNumber {
	var best audio.SequenceNumber
	first := true
	for seq := range j.frames {
		if first || audio.Distance(seq, best) < 0 {
			best = seq
			first = false
		}
	}
	return best
}

func (j *JitterBuffer) nearestNotBefore(watermark audio.SequenceNumber) (audio.SequenceNumber, bool) {
	var best audio.SequenceNumber
	bestDist := int32(1) << 30
	found := false
	for seq := range j.frames {
		d := audio.Distance(seq, watermark)
		if d < 0 {
			continue
		}
		if !found || d < bestDist {
			best = seq
			bestDist = d
			found = true
		}
	}
	return best, found
}
