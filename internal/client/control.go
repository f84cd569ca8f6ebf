package client

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hearline/voicebridge/internal/wire"
)

// controlTimeout bounds every control-plane round trip (spec.md §5:
// "control operations 5s").
const controlTimeout = 5 * time.Second

// heartbeatInterval is how often the client pings the Hub to keep its
// registration alive (SPEC_FULL.md §4.13; well under the Hub's default
// 30s CLIENT_TIMEOUT_SEC).
const heartbeatInterval = 10 * time.Second

// ControlClient is the client half of the Hub's control plane (spec.md
// §4.11/§6): one request per connection, newline-terminated. There is no
// direct teacher equivalent (voice-client speaks its own UDP handshake
// protocol instead of a reliable-stream control plane), so this is
// grounded on _examples/original_source/server/server.py's command
// grammar, dialed as a fresh TCP connection per command the way the wire
// format specifies.
type ControlClient struct {
	hubAddr string
}

// NewControlClient targets hubAddr (host:port of the Hub's control port).
func NewControlClient(hubAddr string) *ControlClient {
	return &ControlClient{hubAddr: hubAddr}
}

func (c *ControlClient) roundTrip(line string) (string, error) {
	conn, err := net.DialTimeout("tcp", c.hubAddr, controlTimeout)
	if err != nil {
		return "", fmt.Errorf("control: dial: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(controlTimeout))

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("control: write: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("control: read reply: %w", err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// Register implements REGISTER:<id>:<audio_port>[:<secret>]. A TAKEN
// reply is returned as a typed error so callers can distinguish it from a
// transport failure.
func (c *ControlClient) Register(id string, audioPort int, secret string) error {
	cmd := wire.RegisterCommand(id, audioPort, secret)
	reply, err := c.roundTrip(cmd)
	if err != nil {
		return err
	}
	switch reply {
	case wire.ReplyOK:
		return nil
	case wire.ReplyTaken:
		return ErrClientIDTaken
	default:
		return fmt.Errorf("control: register: unexpected reply %q", reply)
	}
}

// ErrClientIDTaken is returned by Register when the Hub already has a
// live registration for this ClientId.
var ErrClientIDTaken = fmt.Errorf("control: client id already registered")

// Join implements JOIN:<id>:<room>, returning the room's derived
// multicast address.
func (c *ControlClient) Join(id, room string) (multicastAddr string, err error) {
	reply, err := c.roundTrip(wire.JoinCommand(id, room))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(reply, wire.ReplyOK+":") {
		return "", fmt.Errorf("control: join: unexpected reply %q", reply)
	}
	return strings.TrimPrefix(reply, wire.ReplyOK+":"), nil
}

// SetTargets implements TARGETS:<id>:<csv>.
func (c *ControlClient) SetTargets(id string, targets []string) error {
	reply, err := c.roundTrip(wire.TargetsCommand(id, targets))
	if err != nil {
		return err
	}
	if reply != wire.ReplyOK {
		return fmt.Errorf("control: targets: unexpected reply %q", reply)
	}
	return nil
}

// Ping implements PING:<id>.
func (c *ControlClient) Ping(id string) error {
	reply, err := c.roundTrip(wire.PingCommand(id))
	if err != nil {
		return err
	}
	if reply != wire.ReplyOK {
		return fmt.Errorf("control: ping: unexpected reply %q", reply)
	}
	return nil
}

// Unregister implements UNREGISTER:<id>.
func (c *ControlClient) Unregister(id string) error {
	reply, err := c.roundTrip(wire.UnregisterCommand(id))
	if err != nil {
		return err
	}
	if reply != wire.ReplyOK {
		return fmt.Errorf("control: unregister: unexpected reply %q", reply)
	}
	return nil
}

// List implements LIST, returning sorted registered ids.
func (c *ControlClient) List() ([]string, error) {
	reply, err := c.roundTrip(wire.ListCommand)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(reply, wire.ReplyOK+":") {
		return nil, fmt.Errorf("control: list: unexpected reply %q", reply)
	}
	return wire.SplitCSV(strings.TrimPrefix(reply, wire.ReplyOK+":")), nil
}

// RunHeartbeat pings the Hub every heartbeatInterval until stop is closed.
// Failures are swallowed (the Hub's reaper will evict us if pings
// genuinely stop landing; a single lost ping is not fatal).
func (c *ControlClient) RunHeartbeat(id string, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Ping(id)
		}
	}
}
