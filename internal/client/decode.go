package client

import (
	"runtime"
	"time"

	"go.uber.org/zap"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/hearline/voicebridge/internal/audio"
	"github.com/hearline/voicebridge/internal/telemetry"
)

// DecodeItem is one unit of work on the decode queue (spec.md §4.3).
type DecodeItem struct {
	SenderID string
	Payload  []byte
	Seq      *audio.SequenceNumber
}

// DecodeQueueCapacity is the decode queue's bound (spec.md §5).
const DecodeQueueCapacity = 2048

// minDecoderWorkers is the DecoderPool's floor, per spec.md §4.3 ("size ≥ 4
// or half the CPU count, whichever is larger").
const minDecoderWorkers = 4

// DecoderPool is a fixed pool of workers, each owning an independent opus
// decoder instance (spec.md §4.3). Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/audio_manager.go's
// DecodeAudio, generalized from its single shared decoder-plus-mutex to
// one decoder per worker goroutine since opus.v2's *opus.Decoder is not
// safe for concurrent use (the teacher itself serializes access with
// decodeMu around one instance).
type DecoderPool struct {
	queue   *BoundedQueue[DecodeItem]
	table   *StreamTable
	workers int

	logger         *zap.Logger
	decodeFailures *telemetry.Sampler

	stop chan struct{}
}

// decoderWorkerCount picks the pool size per spec.md §4.3.
func decoderWorkerCount() int {
	half := runtime.NumCPU() / 2
	if half > minDecoderWorkers {
		return half
	}
	return minDecoderWorkers
}

// NewDecoderPool creates a pool feeding decoded frames into table.
func NewDecoderPool(table *StreamTable, logger *zap.Logger) *DecoderPool {
	return &DecoderPool{
		queue:          NewBoundedQueue[DecodeItem](DecodeQueueCapacity),
		table:          table,
		workers:        decoderWorkerCount(),
		logger:         logger,
		decodeFailures: telemetry.NewSampler(logger, "decode failure", 200),
		stop:           make(chan struct{}),
	}
}

// Enqueue pushes item onto the decode queue, dropping the oldest entry on
// overflow (spec.md §5).
func (p *DecoderPool) Enqueue(item DecodeItem) {
	p.queue.Push(item)
}

// QueueDepth reports current decode-queue occupancy, for Stats().
func (p *DecoderPool) QueueDepth() int {
	return p.queue.Len()
}

// Dropped reports cumulative decode-queue overflow drops.
func (p *DecoderPool) Dropped() uint64 {
	return p.queue.Dropped()
}

// Start launches the worker pool.
func (p *DecoderPool) Start() {
	for i := 0; i < p.workers; i++ {
		go p.runWorker(i)
	}
}

// Stop halts all workers.
func (p *DecoderPool) Stop() {
	close(p.stop)
}

func (p *DecoderPool) runWorker(id int) {
	dec, err := opus.NewDecoder(audio.SampleRate, 1)
	if err != nil {
		p.logger.Error("decoder worker failed to initialize", zap.Int("worker", id), zap.Error(err))
		return
	}

	pcm := make([]int16, audio.FrameSamples)
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		item, ok := p.queue.Pop(time.Second)
		if !ok {
			continue
		}

		frame, ok := decodeItem(dec, pcm, item.Payload)
		if !ok {
			p.decodeFailures.Hit(zap.String("sender", item.SenderID))
			continue
		}

		stream := p.table.getOrCreate(item.SenderID)
		stream.Push(item.Seq, frame)
	}
}

// decodeItem decodes one payload. An empty payload synthesizes a
// concealment frame via the codec's native PLC (spec.md §4.3); a decode
// error is reported as a failure with no frame produced, letting
// StreamState's own last-frame PLC absorb the loss (spec.md §7).
func decodeItem(dec *opus.Decoder, pcm []int16, payload []byte) (audio.Frame, bool) {
	if len(payload) == 0 {
		if err := dec.DecodePLC(pcm); err != nil {
			return nil, false
		}
		frame := audio.NewFrame()
		copy(frame, pcm)
		return frame, true
	}

	n, err := dec.Decode(payload, pcm)
	if err != nil {
		return nil, false
	}

	frame := audio.NewFrame()
	copy(frame, pcm[:n])
	return frame, true
}
