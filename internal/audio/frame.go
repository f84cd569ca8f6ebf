// Package audio holds the sample-level primitives shared by every stage of
// the voice pipeline: frame geometry, sequence/timestamp wraparound
// arithmetic, and the PCM byte encoding used on the wire.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the fixed network/capture rate for the pipeline: 16kHz mono.
	SampleRate = 16000
	// FrameDurationMs is the fixed frame duration used throughout the pipeline.
	FrameDurationMs = 20
	// FrameSamples is the number of PCM samples in one frame (320 @ 16kHz/20ms).
	FrameSamples = SampleRate * FrameDurationMs / 1000
	// FrameBytes is the wire size of one PCM frame (signed 16-bit, 320 samples).
	FrameBytes = FrameSamples * 2
	// TimestampStep is the amount a Timestamp advances per frame.
	TimestampStep = FrameSamples
)

// Frame is 20ms of 16kHz mono signed 16-bit PCM: exactly FrameSamples samples.
type Frame []int16

// NewFrame returns a silent frame of the canonical length.
func NewFrame() Frame {
	return make(Frame, FrameSamples)
}

// Clone returns an independent copy of f.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// Silent reports whether every sample is zero.
func (f Frame) Silent() bool {
	for _, s := range f {
		if s != 0 {
			return false
		}
	}
	return true
}

// Scale multiplies every sample by gain, clipping to the int16 range.
func (f Frame) Scale(gain float64) Frame {
	if gain == 1.0 {
		return f
	}
	out := make(Frame, len(f))
	for i, s := range f {
		out[i] = ClipSample(float64(s) * gain)
	}
	return out
}

// Crossfade linearly blends a and b (aWeight+bWeight need not sum to 1, but
// the spec's usage always passes 0.3/0.7) into a new frame as long as the
// shorter of a and b.
func Crossfade(a, b Frame, aWeight, bWeight float64) Frame {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make(Frame, n)
	for i := 0; i < n; i++ {
		v := float64(a[i])*aWeight + float64(b[i])*bWeight
		out[i] = ClipSample(v)
	}
	return out
}

// ClipSample clamps a floating sample to the signed 16-bit range.
func ClipSample(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// RMS returns the root-mean-square amplitude of a frame.
func RMS(f Frame) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f)))
}

// EncodePCM serializes a frame as little-endian signed 16-bit samples.
func EncodePCM(f Frame) []byte {
	out := make([]byte, len(f)*2)
	for i, s := range f {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM parses little-endian signed 16-bit samples into a canonical-length
// frame, zero-padding a short input.
func DecodePCM(data []byte) Frame {
	out := NewFrame()
	n := len(data) / 2
	if n > FrameSamples {
		n = FrameSamples
	}
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
