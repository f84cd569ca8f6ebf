package hub

import (
	"net"
	"time"

	"go.uber.org/zap"
)

// discoveryPayload is the UDP broadcast beacon clients listen for to find a
// Hub on the local network, per spec.md §6 ("Discovery: hub periodically
// broadcasts an announcement"). Grounded on
// _examples/original_source/server/server.py's broadcast_server, which
// sends the same literal string at a fixed interval.
const discoveryPayload = "VOICE_SERVER"

// Discoverer periodically broadcasts discoveryPayload on a UDP broadcast
// socket so clients without a configured Hub address can find one.
type Discoverer struct {
	conn     *net.UDPConn
	interval time.Duration
	logger   *zap.Logger
}

// NewDiscoverer binds a broadcast-capable socket for periodic announcements.
func NewDiscoverer(broadcastAddr *net.UDPAddr, interval time.Duration, logger *zap.Logger) (*Discoverer, error) {
	conn, err := net.DialUDP("udp", nil, broadcastAddr)
	if err != nil {
		return nil, err
	}
	return &Discoverer{conn: conn, interval: interval, logger: logger}, nil
}

// Run broadcasts on a ticker until stop is closed. A failed write is logged
// as a warning and the loop keeps broadcasting.
func (d *Discoverer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := d.conn.Write([]byte(discoveryPayload)); err != nil {
				d.logger.Warn("discovery broadcast failed", zap.Error(err))
			}
		}
	}
}

// Close releases the discovery socket.
func (d *Discoverer) Close() error {
	return d.conn.Close()
}
