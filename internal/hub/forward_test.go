package hub

import (
	"net"
	"testing"
	"time"

	"github.com/hearline/voicebridge/internal/telemetry"
)

func newUDPPair(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	t.Helper()
	a, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	return a, b
}

func readWithTimeout(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("expected a forwarded packet, got error: %v", err)
	}
	return buf[:n]
}

func expectNoPacket(t *testing.T, conn *net.UDPConn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 4096)
	if _, _, err := conn.ReadFromUDP(buf); err == nil {
		t.Fatal("expected no packet, got one")
	}
}

// TestForwarderFanOutByTargets exercises spec.md §8's "Hub fan-out"
// scenario: a packet from A reaches B and C byte-identical, and never
// bounces back to A.
func TestForwarderFanOutByTargets(t *testing.T) {
	registry := NewRegistry()

	bConn, cConn := newUDPPair(t)
	defer bConn.Close()
	defer cConn.Close()

	hubConn, senderConn := newUDPPair(t)
	defer hubConn.Close()
	defer senderConn.Close()

	registry.Register("A", "127.0.0.1", senderConn.LocalAddr().(*net.UDPAddr).Port, "")
	registry.Register("B", "127.0.0.1", bConn.LocalAddr().(*net.UDPAddr).Port, "")
	registry.Register("C", "127.0.0.1", cConn.LocalAddr().(*net.UDPAddr).Port, "")
	registry.SetTargets("A", []string{"B", "C"})

	fwd := NewForwarder(hubConn, registry, telemetry.NewDevLogger("test"))
	go fwd.Serve()

	payload := []byte("A|1|1001|1|hello-world-payload-with-a-pipe-|-inside")
	if _, err := senderConn.WriteToUDP(payload, hubConn.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatal(err)
	}

	gotB := readWithTimeout(t, bConn)
	gotC := readWithTimeout(t, cConn)
	if string(gotB) != string(payload) {
		t.Errorf("B got %q, want byte-identical %q", gotB, payload)
	}
	if string(gotC) != string(payload) {
		t.Errorf("C got %q, want byte-identical %q", gotC, payload)
	}
	expectNoPacket(t, senderConn)
}

// TestForwarderRoomFallbackWhenNoTargets exercises Open Question 1's
// resolution (b): with an empty target set the Hub unicasts to every other
// member of the sender's room.
func TestForwarderRoomFallbackWhenNoTargets(t *testing.T) {
	registry := NewRegistry()

	bConn, _ := newUDPPair(t)
	defer bConn.Close()
	hubConn, senderConn := newUDPPair(t)
	defer hubConn.Close()
	defer senderConn.Close()

	registry.Register("A", "127.0.0.1", senderConn.LocalAddr().(*net.UDPAddr).Port, "")
	registry.Register("B", "127.0.0.1", bConn.LocalAddr().(*net.UDPAddr).Port, "")
	registry.Join("A", "main")
	registry.Join("B", "main")

	fwd := NewForwarder(hubConn, registry, telemetry.NewDevLogger("test"))
	go fwd.Serve()

	payload := []byte("A|1|1001|0|")
	if _, err := senderConn.WriteToUDP(payload, hubConn.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatal(err)
	}

	got := readWithTimeout(t, bConn)
	if string(got) != string(payload) {
		t.Errorf("B got %q, want byte-identical %q", got, payload)
	}
}

// TestForwarderToleratesIPMismatch confirms roaming senders are still
// forwarded even when their source IP no longer matches registration.
func TestForwarderToleratesIPMismatch(t *testing.T) {
	registry := NewRegistry()

	bConn, _ := newUDPPair(t)
	defer bConn.Close()
	hubConn, senderConn := newUDPPair(t)
	defer hubConn.Close()
	defer senderConn.Close()

	// Register A under a bogus IP so the real sender's loopback address
	// will never match it.
	registry.Register("A", "10.9.9.9", senderConn.LocalAddr().(*net.UDPAddr).Port, "")
	registry.Register("B", "127.0.0.1", bConn.LocalAddr().(*net.UDPAddr).Port, "")
	registry.SetTargets("A", []string{"B"})

	fwd := NewForwarder(hubConn, registry, telemetry.NewDevLogger("test"))
	go fwd.Serve()

	payload := []byte("A|1|1001|1|payload")
	if _, err := senderConn.WriteToUDP(payload, hubConn.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatal(err)
	}

	got := readWithTimeout(t, bConn)
	if string(got) != string(payload) {
		t.Errorf("B got %q, want byte-identical %q despite IP mismatch", got, payload)
	}
}

func TestForwarderDropsMalformedAndUnknownSenders(t *testing.T) {
	registry := NewRegistry()
	hubConn, senderConn := newUDPPair(t)
	defer hubConn.Close()
	defer senderConn.Close()

	fwd := NewForwarder(hubConn, registry, telemetry.NewDevLogger("test"))

	fwd.handlePacket([]byte("no-delimiters-at-all"), senderConn.LocalAddr().(*net.UDPAddr))
	fwd.handlePacket([]byte("ghost|1|1|1|payload"), senderConn.LocalAddr().(*net.UDPAddr))

	stats := fwd.Stats()
	if stats["audio_dropped_malformed"] != 1 {
		t.Errorf("audio_dropped_malformed = %d, want 1", stats["audio_dropped_malformed"])
	}
	if stats["audio_dropped_unknown"] != 1 {
		t.Errorf("audio_dropped_unknown = %d, want 1", stats["audio_dropped_unknown"])
	}
}
