package hub

import (
	"bytes"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hearline/voicebridge/internal/telemetry"
)

// Forwarder is the Hub's single UDP socket on the audio port (spec.md
// §4.12). Grounded on _examples/original_source/server/server.py's
// audio_router: parse the leading sender_id field, tolerate IP roaming,
// fan out by target set, falling back to room-wide unicast delivery.
//
// Open Question 1 (spec.md §9) is resolved as (b): when a sender has no
// explicit targets, the Hub unicasts the packet to every other registered
// member of the sender's room; a room's derived multicast group is also
// sent to when MulticastEnabled is set, for operators who want clients to
// join it directly, but that is not the default path.
type Forwarder struct {
	registry         *Registry
	conn             *net.UDPConn
	MulticastEnabled bool

	malformed  *telemetry.Sampler
	unknown    *telemetry.Sampler
	ipMismatch *telemetry.Sampler

	droppedMalformed atomic.Uint64
	droppedUnknown   atomic.Uint64
	forwarded        atomic.Uint64
	ipMismatches     atomic.Uint64
}

// NewForwarder wraps conn, the already-bound audio-port UDP socket.
func NewForwarder(conn *net.UDPConn, registry *Registry, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		registry:   registry,
		conn:       conn,
		malformed:  telemetry.NewSampler(logger, "malformed audio packet", 200),
		unknown:    telemetry.NewSampler(logger, "audio from unregistered sender", 500),
		ipMismatch: telemetry.NewSampler(logger, "audio sender IP mismatch", 100),
	}
}

// Serve reads datagrams from the audio socket until it errors (typically
// because the socket was closed during shutdown).
func (f *Forwarder) Serve() error {
	buf := make([]byte, 4096)
	for {
		n, addr, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		// Copy out of buf before handling: the next ReadFromUDP will
		// overwrite it. handlePacket forwards synchronously, before the
		// next read, so the copy only guards against aliasing if
		// forwarding ever becomes asynchronous.
		packet := make([]byte, n)
		copy(packet, buf[:n])
		f.handlePacket(packet, addr)
	}
}

func (f *Forwarder) handlePacket(packet []byte, addr *net.UDPAddr) {
	senderID, ok := parseSenderID(packet)
	if !ok {
		f.droppedMalformed.Add(1)
		f.malformed.Hit(zap.String("addr", addr.String()))
		return
	}

	ep, ok := f.registry.Lookup(senderID)
	if !ok {
		f.droppedUnknown.Add(1)
		f.unknown.Hit(zap.String("sender", senderID))
		return
	}

	if ep.IP != "" && ep.IP != addr.IP.String() {
		f.ipMismatches.Add(1)
		f.ipMismatch.Hit(zap.String("sender", senderID), zap.String("expected", ep.IP), zap.String("got", addr.IP.String()))
		// Roaming tolerance: forward anyway, per spec.md §4.12/§7.
	}

	if len(ep.Targets) > 0 {
		for _, target := range f.registry.AllTargets(senderID) {
			if target.ID == senderID {
				continue
			}
			f.sendTo(packet, target)
		}
		return
	}

	if ep.Room == "" {
		return
	}

	for _, member := range f.registry.RoomMembers(ep.Room) {
		if member.ID == senderID {
			continue
		}
		f.sendTo(packet, member)
	}

	if f.MulticastEnabled {
		f.sendMulticast(packet, ep.Room)
	}
}

func (f *Forwarder) sendTo(packet []byte, ep Endpoint) {
	dst := &net.UDPAddr{IP: net.ParseIP(ep.IP), Port: ep.AudioPort}
	if _, err := f.conn.WriteToUDP(packet, dst); err == nil {
		f.forwarded.Add(1)
	}
}

func (f *Forwarder) sendMulticast(packet []byte, room string) {
	group := MulticastGroupForRoom(room)
	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: f.conn.LocalAddr().(*net.UDPAddr).Port}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write(packet)
}

// parseSenderID extracts the first pipe- or colon-delimited field, per
// spec.md §4.12 ("the first pipe- or colon-delimited field is interpreted
// as sender_id"). It does not otherwise validate the packet: the Hub
// forwards unmodified and opaque payloads are the decoder's concern, not
// the router's.
func parseSenderID(packet []byte) (string, bool) {
	pipeIdx := bytes.IndexByte(packet, '|')
	colonIdx := bytes.IndexByte(packet, ':')

	idx := -1
	switch {
	case pipeIdx < 0 && colonIdx < 0:
		return "", false
	case pipeIdx < 0:
		idx = colonIdx
	case colonIdx < 0:
		idx = pipeIdx
	case pipeIdx < colonIdx:
		idx = pipeIdx
	default:
		idx = colonIdx
	}
	if idx <= 0 {
		return "", false
	}
	return string(packet[:idx]), true
}

// Stats returns forwarder-level counters for the Hub's Stats() snapshot.
func (f *Forwarder) Stats() map[string]uint64 {
	return map[string]uint64{
		"audio_forwarded":         f.forwarded.Load(),
		"audio_dropped_malformed": f.droppedMalformed.Load(),
		"audio_dropped_unknown":   f.droppedUnknown.Load(),
		"audio_ip_mismatches":     f.ipMismatches.Load(),
	}
}
