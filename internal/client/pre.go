package client

import "github.com/hearline/voicebridge/internal/audio"

// Preprocessor constants (spec.md §4.7). There is no ecosystem AEC/noise-
// gate library among the examples (native echo cancellation is out of
// scope per spec.md §1), so this stays on stdlib math — the one component
// in this module with no third-party grounding, by design rather than
// default.
const (
	echoSuppressMinRMS  = 300.0
	echoAttenuateGain   = 0.65
	dcBlockerR          = 0.995
	lowPassPrev         = 0.6
	lowPassCurrent      = 0.4
	noiseFloorAlphaUp   = 0.005
	noiseFloorAlphaDown = 0.02
	noiseGateAttackRMS  = 180.0
	noiseGateRMS        = 70.0
	gateMinGain         = 0.08
	gateAttack          = 0.35
	gateRelease         = 0.05
	vadThreshold        = 35.0
	vadHangoverFrames   = 20
)

// Preprocessor applies DC-blocking, optional low-pass smoothing, an
// adaptive noise gate, optional echo attenuation, and VAD to captured
// frames, in the order spec.md §4.7 defines. Grounded on
// _examples/original_source/client/audio.py's per-frame processing
// chain, reimplemented in Go's one-struct-carries-state idiom rather than
// the original's module-level globals.
type Preprocessor struct {
	EchoAttenuationEnabled bool
	LowPassEnabled         bool

	dcPrevIn  float64
	dcPrevOut float64
	lpPrev    float64

	noiseFloor float64
	gateGain   float64

	vadHangover int
}

// NewPreprocessor creates a Preprocessor with gate fully open and no
// accumulated DC/low-pass state.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{gateGain: 1.0}
}

// Result is one frame's worth of preprocessing output plus its VAD flag
// (spec.md §4.7 step 6: "VAD is metadata only — silence frames are still
// transmitted").
type Result struct {
	Frame audio.Frame
	Voice bool
}

// Process runs the full chain over one captured frame. farReference is the
// most recently played frame (PlaybackSink.last_played), used only when
// EchoAttenuationEnabled is set.
func (p *Preprocessor) Process(mic audio.Frame, farReference audio.Frame) Result {
	out := mic.Clone()

	if p.EchoAttenuationEnabled && farReference != nil {
		farRMS := audio.RMS(farReference)
		micRMS := audio.RMS(out)
		if farRMS >= echoSuppressMinRMS && farRMS >= 0.8*micRMS {
			out = out.Scale(echoAttenuateGain)
		}
	}

	for i, x := range out {
		xf := float64(x)
		y := xf - p.dcPrevIn + dcBlockerR*p.dcPrevOut
		p.dcPrevIn = xf
		p.dcPrevOut = y
		out[i] = audio.ClipSample(y)
	}

	if p.LowPassEnabled {
		for i, x := range out {
			y := lowPassPrev*p.lpPrev + lowPassCurrent*float64(x)
			p.lpPrev = y
			out[i] = audio.ClipSample(y)
		}
	}

	rms := audio.RMS(out)
	if rms > p.noiseFloor {
		p.noiseFloor += noiseFloorAlphaUp * (rms - p.noiseFloor)
	} else {
		p.noiseFloor += noiseFloorAlphaDown * (rms - p.noiseFloor)
	}

	openThr := noiseGateAttackRMS
	if floorScaled := p.noiseFloor * 1.6; floorScaled > openThr {
		openThr = floorScaled
	}
	closeThr := noiseGateRMS
	if floorScaled := p.noiseFloor * 1.8; floorScaled > closeThr {
		closeThr = floorScaled
	}

	var desiredGain float64
	switch {
	case rms >= openThr:
		desiredGain = 1.0
	case rms <= closeThr:
		desiredGain = gateMinGain
	default:
		span := openThr - closeThr
		frac := 0.0
		if span > 0 {
			frac = (rms - closeThr) / span
		}
		desiredGain = gateMinGain + frac*(1.0-gateMinGain)
	}

	rate := gateRelease
	if desiredGain > p.gateGain {
		rate = gateAttack
	}
	p.gateGain += rate * (desiredGain - p.gateGain)
	out = out.Scale(p.gateGain)

	voice := false
	if rms > vadThreshold {
		voice = true
		p.vadHangover = vadHangoverFrames
	} else if p.vadHangover > 0 {
		p.vadHangover--
		voice = true
	}

	return Result{Frame: out, Voice: voice}
}
