package client

import (
	"net"

	"go.uber.org/zap"

	"github.com/hearline/voicebridge/internal/telemetry"
	"github.com/hearline/voicebridge/internal/wire"
)

// Receiver reads audio datagrams from the Hub and enqueues them for
// decoding (spec.md §4.9). Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/voice_client.go's
// parseAudioPayload receive loop, replaced with wire.ParseAudioPacket's
// current/legacy dual-form parsing.
type Receiver struct {
	conn     *net.UDPConn
	clientID string
	pool     *DecoderPool

	logger             *zap.Logger
	malformed          *telemetry.Sampler
	reflectionRejected uint64
	netStats           *netStatsRegistry

	stop chan struct{}
}

// NewReceiver creates a Receiver reading from conn, enqueueing decoded
// work onto pool. clientID is used to reject reflected packets (a packet
// whose sender_id equals our own).
func NewReceiver(conn *net.UDPConn, clientID string, pool *DecoderPool, logger *zap.Logger) *Receiver {
	return &Receiver{
		conn:      conn,
		clientID:  clientID,
		pool:      pool,
		logger:    logger,
		malformed: telemetry.NewSampler(logger, "malformed inbound audio packet", 200),
		netStats:  newNetStatsRegistry(),
		stop:      make(chan struct{}),
	}
}

// Run reads datagrams until Stop is called or the socket errors.
func (r *Receiver) Run() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		packet, err := wire.ParseAudioPacket(buf[:n])
		if err != nil {
			r.malformed.Hit()
			continue
		}

		if packet.SenderID == r.clientID {
			// Defense against reflection (spec.md §4.9).
			r.reflectionRejected++
			continue
		}

		if packet.Seq != nil {
			r.netStats.get(packet.SenderID).record(*packet.Seq)
		}

		r.pool.Enqueue(DecodeItem{
			SenderID: packet.SenderID,
			Payload:  packet.Payload,
			Seq:      packet.Seq,
		})
	}
}

// Stop halts the read loop on its next iteration. Since ReadFromUDP can
// still be blocked on a pending read, callers should close the underlying
// socket after Stop to unblock it promptly (spec.md §5: "device streams
// are stopped before sockets are closed, so a pending read returns
// promptly" — the same pattern applies to the receive socket).
func (r *Receiver) Stop() {
	close(r.stop)
}

// ReflectionRejected reports how many packets were dropped because their
// sender_id matched our own client ID.
func (r *Receiver) ReflectionRejected() uint64 {
	return r.reflectionRejected
}

// WorstSenderLossPercent reports the highest rolling packet-loss percentage
// seen across all remote senders, a cheap single-number health indicator.
func (r *Receiver) WorstSenderLossPercent() float64 {
	return r.netStats.worstLossPercent()
}

// AvgJitterMillis reports the mean inter-arrival jitter across all remote
// senders, in milliseconds.
func (r *Receiver) AvgJitterMillis() float64 {
	return r.netStats.avgJitterMillis()
}
