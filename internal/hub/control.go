package hub

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/hearline/voicebridge/internal/telemetry"
	"github.com/hearline/voicebridge/internal/wire"
)

// ControlServer accepts one reliable-transport connection per command, per
// spec.md §4.11/§6, and dispatches it against the shared Registry.
// Grounded on _examples/original_source/server/server.py's control_listener
// dispatch, upgraded from UDP datagrams to the spec's byte-stream contract.
type ControlServer struct {
	registry *Registry
	logger   *zap.Logger
	malformedSampler *telemetry.Sampler
}

// NewControlServer builds a control server bound to registry.
func NewControlServer(registry *Registry, logger *zap.Logger) *ControlServer {
	return &ControlServer{
		registry:         registry,
		logger:           logger,
		malformedSampler: telemetry.NewSampler(logger, "malformed control command", 200),
	}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed during shutdown).
func (s *ControlServer) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *ControlServer) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	reply := s.dispatch(strings.TrimRight(line, "\r\n"), host)
	fmt.Fprintf(conn, "%s\n", reply)
}

func (s *ControlServer) dispatch(line, remoteIP string) string {
	cmd, err := wire.ParseCommand(line)
	if err != nil {
		s.malformedSampler.Hit(zap.String("line", line))
		return wire.ReplyErr
	}

	switch cmd.Verb {
	case "REGISTER":
		return s.handleRegister(cmd.Args, remoteIP)
	case "JOIN":
		return s.handleJoin(cmd.Args)
	case "TARGETS", "TALK":
		return s.handleTargets(cmd.Args)
	case "PING":
		return s.handlePing(cmd.Args)
	case "UNREGISTER":
		return s.handleUnregister(cmd.Args)
	case "LIST":
		return wire.FormatOKWithPayload(strings.Join(s.registry.List(), ","))
	default:
		s.malformedSampler.Hit(zap.String("verb", cmd.Verb))
		return wire.ReplyErr
	}
}

func (s *ControlServer) handleRegister(args []string, remoteIP string) string {
	if len(args) < 2 {
		return wire.ReplyErr
	}
	id := args[0]
	port, err := wire.ParseAudioPort(args[1])
	if err != nil {
		return wire.ReplyErr
	}
	secret := ""
	if len(args) >= 3 {
		secret = args[2]
	}
	taken := s.registry.Register(id, remoteIP, port, secret)
	if taken {
		s.logger.Info("registration rejected: id already taken", zap.String("id", id))
		return wire.ReplyTaken
	}
	return wire.ReplyOK
}

func (s *ControlServer) handleJoin(args []string) string {
	if len(args) < 2 {
		return wire.ReplyErr
	}
	addr, err := s.registry.Join(args[0], args[1])
	if err != nil {
		return wire.ReplyErr
	}
	return wire.FormatOKWithPayload(addr)
}

func (s *ControlServer) handleTargets(args []string) string {
	if len(args) < 1 {
		return wire.ReplyErr
	}
	csv := ""
	if len(args) >= 2 {
		csv = args[1]
	}
	if err := s.registry.SetTargets(args[0], wire.SplitCSV(csv)); err != nil {
		return wire.ReplyErr
	}
	return wire.ReplyOK
}

func (s *ControlServer) handlePing(args []string) string {
	if len(args) < 1 {
		return wire.ReplyErr
	}
	if err := s.registry.Heartbeat(args[0]); err != nil {
		return wire.ReplyErr
	}
	return wire.ReplyOK
}

func (s *ControlServer) handleUnregister(args []string) string {
	if len(args) < 1 {
		return wire.ReplyErr
	}
	s.registry.Unregister(args[0])
	return wire.ReplyOK
}
