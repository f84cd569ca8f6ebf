package hub

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/hearline/voicebridge/internal/appconfig"
)

// Hub wires together the Registry, ControlServer, Forwarder, reaper, and
// optional Discoverer into one running server, per spec.md §3's component
// list. There is no teacher equivalent for this orchestrator: the teacher
// is a client-only codebase, so Hub follows
// _examples/original_source/server/server.py's top-level wiring
// (control_listener + audio_router + broadcast_server + cleanup_inactive
// started as independent loops against one shared registry).
type Hub struct {
	cfg appconfig.HubConfig

	registry   *Registry
	control    *ControlServer
	forwarder  *Forwarder
	discoverer *Discoverer

	controlLn net.Listener
	audioConn *net.UDPConn

	logger *zap.Logger
	stop   chan struct{}
}

// New constructs a Hub bound to the listeners described by cfg. It does not
// start any goroutines; call Run for that.
func New(cfg appconfig.HubConfig, logger *zap.Logger) (*Hub, error) {
	registry := NewRegistry()

	controlLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.ControlPort))
	if err != nil {
		return nil, fmt.Errorf("hub: listen control: %w", err)
	}

	audioConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.ListenAddr), Port: cfg.AudioPort})
	if err != nil {
		controlLn.Close()
		return nil, fmt.Errorf("hub: listen audio: %w", err)
	}

	control := NewControlServer(registry, logger)
	forwarder := NewForwarder(audioConn, registry, logger)
	forwarder.MulticastEnabled = cfg.MulticastEnabled

	h := &Hub{
		cfg:       cfg,
		registry:  registry,
		control:   control,
		forwarder: forwarder,
		controlLn: controlLn,
		audioConn: audioConn,
		logger:    logger,
		stop:      make(chan struct{}),
	}

	if cfg.DiscoveryIntervalSeconds > 0 {
		broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: cfg.DiscoveryPort}
		discoverer, err := NewDiscoverer(broadcastAddr, time.Duration(cfg.DiscoveryIntervalSeconds)*time.Second, logger)
		if err != nil {
			logger.Warn("discovery broadcaster disabled: failed to bind", zap.Error(err))
		} else {
			h.discoverer = discoverer
		}
	}

	return h, nil
}

// Run starts the control server, forwarder, reaper, and discoverer and
// blocks until Close is called.
func (h *Hub) Run() error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- h.control.Serve(h.controlLn)
	}()
	go func() {
		errCh <- h.forwarder.Serve()
	}()
	go h.reapLoop()
	if h.discoverer != nil {
		go h.discoverer.Run(h.stop)
	}

	select {
	case err := <-errCh:
		return err
	case <-h.stop:
		return nil
	}
}

// reapLoop evicts stale clients every ClientTimeoutSeconds/2, so a client
// is never live for longer than 1.5x its nominal timeout window.
func (h *Hub) reapLoop() {
	timeout := time.Duration(h.cfg.ClientTimeoutSeconds) * time.Second
	interval := timeout / 2
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			if expired := h.registry.Reap(timeout); len(expired) > 0 {
				h.logger.Info("reaped stale clients", zap.Strings("ids", expired))
			}
		}
	}
}

// Close stops all Hub loops and releases its sockets.
func (h *Hub) Close() error {
	close(h.stop)
	h.controlLn.Close()
	h.audioConn.Close()
	if h.discoverer != nil {
		h.discoverer.Close()
	}
	return nil
}

// Stats returns a point-in-time snapshot of Hub-wide counters, per
// SPEC_FULL.md §6.1's observability accessor (no new network surface).
func (h *Hub) Stats() map[string]uint64 {
	stats := h.forwarder.Stats()
	stats["registered_clients"] = uint64(len(h.registry.List()))
	return stats
}
