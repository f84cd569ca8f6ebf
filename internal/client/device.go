//go:build cgo

package client

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/hearline/voicebridge/internal/audio"
)

// InputQueueCapacity bounds CaptureSource's input queue (spec.md §5).
const InputQueueCapacity = 128

// UnderrunDecay is applied to the last played frame when PlaybackSink
// underruns (spec.md §4.5).
const UnderrunDecay = 0.90

// Device wraps one input and one output portaudio stream fixed to
// spec.md's audio format (16kHz mono 16-bit PCM, 20ms frames). Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/audio_manager.go's
// openInputStream/openOutputStream low-then-high-latency retry, trimmed of
// the teacher's stereo/resampling fallback paths since spec.md fixes the
// format at a single sample rate with no device-rate negotiation.
type Device struct {
	inputStream  *portaudio.Stream
	outputStream *portaudio.Stream

	input  *BoundedQueue[audio.Frame]
	output *BoundedQueue[audio.Frame]

	controller *AdaptiveController

	lastPlayedMu sync.Mutex
	lastPlayed   audio.Frame
	havePlayed   bool
}

// NewDevice opens input and output streams at the fixed sample rate,
// feeding from output and into input.
func NewDevice(output *BoundedQueue[audio.Frame], controller *AdaptiveController) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: initialize portaudio: %w", err)
	}

	d := &Device{
		input:      NewBoundedQueue[audio.Frame](InputQueueCapacity),
		output:     output,
		controller: controller,
	}

	inputStream, err := d.openInputStream()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	outputStream, err := d.openOutputStream()
	if err != nil {
		inputStream.Close()
		portaudio.Terminate()
		return nil, err
	}
	d.inputStream = inputStream
	d.outputStream = outputStream

	if err := d.inputStream.Start(); err != nil {
		d.inputStream.Close()
		d.outputStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("device: start input: %w (rolled back)", err)
	}
	if err := d.outputStream.Start(); err != nil {
		d.inputStream.Stop()
		d.inputStream.Close()
		d.outputStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("device: start output: %w (rolled back)", err)
	}

	return d, nil
}

func (d *Device) openInputStream() (*portaudio.Stream, error) {
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("device: no input device: %w", err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(audio.SampleRate),
		FramesPerBuffer: audio.FrameSamples,
	}

	stream, err := portaudio.OpenStream(params, d.processInput)
	if err != nil {
		params.Input.Latency = dev.DefaultHighInputLatency
		stream, err = portaudio.OpenStream(params, d.processInput)
		if err != nil {
			return nil, fmt.Errorf("device: open input (low and high latency failed): %w", err)
		}
	}
	return stream, nil
}

func (d *Device) openOutputStream() (*portaudio.Stream, error) {
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("device: no output device: %w", err)
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(audio.SampleRate),
		FramesPerBuffer: audio.FrameSamples,
	}

	stream, err := portaudio.OpenStream(params, d.processOutput)
	if err != nil {
		params.Output.Latency = dev.DefaultHighOutputLatency
		stream, err = portaudio.OpenStream(params, d.processOutput)
		if err != nil {
			return nil, fmt.Errorf("device: open output (low and high latency failed): %w", err)
		}
	}
	return stream, nil
}

// InputQueue is the CaptureSource's bounded queue of raw captured frames,
// drained by the Preprocessor/Encoder/Sender loop.
func (d *Device) InputQueue() *BoundedQueue[audio.Frame] {
	return d.input
}

// processInput is the CaptureSource device callback (spec.md §4.6): it
// must never block, so it only enqueues into the bounded input queue.
func (d *Device) processInput(in []int16) {
	frame := audio.NewFrame()
	copy(frame, in)
	d.input.Push(frame)
}

// processOutput is the PlaybackSink device callback (spec.md §4.5): it
// dequeues one frame non-blockingly, falling back to decayed last-played
// audio on underrun, and never to silence-on-wrong-length without first
// checking the cached frame's size.
func (d *Device) processOutput(out []int16) {
	if d.controller != nil {
		d.controller.RecordCallback()
	}

	d.lastPlayedMu.Lock()
	defer d.lastPlayedMu.Unlock()

	frame, ok := d.output.Pop(0)
	if !ok {
		if d.havePlayed && len(d.lastPlayed) == len(out) {
			decayed := d.lastPlayed.Scale(UnderrunDecay)
			copy(out, decayed)
			d.lastPlayed = decayed
		} else {
			for i := range out {
				out[i] = 0
			}
		}
		if d.controller != nil {
			d.controller.RecordUnderrun()
		}
		return
	}

	if len(frame) == len(out) {
		copy(out, frame)
	} else {
		for i := range out {
			out[i] = 0
		}
	}
	d.lastPlayed = frame
	d.havePlayed = true
}

// LastPlayed returns the most recently played frame, used by the
// Preprocessor as the far-end echo reference (spec.md §4.5/§4.7).
func (d *Device) LastPlayed() audio.Frame {
	d.lastPlayedMu.Lock()
	defer d.lastPlayedMu.Unlock()
	if !d.havePlayed {
		return nil
	}
	return d.lastPlayed.Clone()
}

// Close stops and releases both streams.
func (d *Device) Close() error {
	if d.inputStream != nil {
		d.inputStream.Stop()
		d.inputStream.Close()
	}
	if d.outputStream != nil {
		d.outputStream.Stop()
		d.outputStream.Close()
	}
	return portaudio.Terminate()
}
