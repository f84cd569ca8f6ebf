package client

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/hearline/voicebridge/internal/audio"
	"github.com/hearline/voicebridge/internal/wire"
)

// senderQueueTimeout is the Sender's suspension timeout on the input
// queue (spec.md §5).
const senderQueueTimeout = 200 * time.Millisecond

// Sender is the capture-side preprocess→encode→send loop (spec.md §4.8).
// Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/voice_client.go's
// sendAudioPacketWithType and its generation-counter start/stop guard,
// generalized to the fixed current-form wire packet spec.md §3 defines
// instead of the teacher's multiple historical header formats.
type Sender struct {
	conn     *net.UDPConn
	hubAddr  *net.UDPAddr
	clientID string

	pre     *Preprocessor
	encoder *opus.Encoder

	input *BoundedQueue[audio.Frame]

	seq atomic.Uint32 // low 16 bits are the wire SequenceNumber
	ts  atomic.Uint32

	generation atomic.Uint64
	running    atomic.Bool

	logger      *zap.Logger
	sendErrored atomic.Uint64

	wg sync.WaitGroup
}

// NewSender creates a Sender transmitting client ID-tagged packets to
// hubAddr over conn, reading captured frames from input.
func NewSender(conn *net.UDPConn, hubAddr *net.UDPAddr, clientID string, input *BoundedQueue[audio.Frame], logger *zap.Logger) (*Sender, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	return &Sender{
		conn:     conn,
		hubAddr:  hubAddr,
		clientID: clientID,
		pre:      NewPreprocessor(),
		encoder:  enc,
		input:    input,
		logger:   logger,
	}, nil
}

// Start bumps the generation and launches the send loop. Per spec.md §9,
// a generation mismatch forces the loop to exit even if running was
// re-asserted by a concurrent Start.
func (s *Sender) Start(farReference func() audio.Frame) {
	gen := s.generation.Add(1)
	s.running.Store(true)
	s.wg.Add(1)
	go s.run(gen, farReference)
}

// Stop clears the running flag and waits up to 2s for the loop to observe
// it (spec.md §5's Sender join timeout).
func (s *Sender) Stop() {
	s.running.Store(false)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.logger.Warn("sender stop timed out waiting for loop exit")
	}
}

func (s *Sender) run(gen uint64, farReference func() audio.Frame) {
	defer s.wg.Done()

	for {
		if !s.running.Load() || s.generation.Load() != gen {
			return
		}

		frame, ok := s.input.Pop(senderQueueTimeout)
		if !ok {
			continue
		}
		if s.generation.Load() != gen {
			return
		}

		var far audio.Frame
		if farReference != nil {
			far = farReference()
		}
		result := s.pre.Process(frame, far)

		payload, err := s.encode(result.Frame)
		if err != nil {
			s.logger.Warn("encode failed, dropping frame", zap.Error(err))
			continue
		}

		s.sendPacket(payload, result.Voice)
	}
}

func (s *Sender) encode(frame audio.Frame) ([]byte, error) {
	buf := make([]byte, 4000)
	n, err := s.encoder.Encode(frame, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// sendPacket builds and transmits one datagram. Per spec.md §4.8, seq and
// ts advance only after a successful send.
func (s *Sender) sendPacket(payload []byte, voice bool) {
	seq := audio.SequenceNumber(uint16(s.seq.Load()))
	ts := audio.Timestamp(s.ts.Load())

	packet := wire.BuildAudioPacket(s.clientID, seq, ts, voice, payload)

	if _, err := s.conn.WriteToUDP(packet, s.hubAddr); err != nil {
		s.sendErrored.Add(1)
		return
	}

	s.seq.Add(1)
	s.ts.Store(uint32(ts.Advance(1)))
}

// SendErrors reports the cumulative count of failed sends, for Stats().
func (s *Sender) SendErrors() uint64 {
	return s.sendErrored.Load()
}
