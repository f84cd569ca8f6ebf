package client

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hearline/voicebridge/internal/appconfig"
)

// VoiceClient owns one client lifecycle: the audio pipeline (device,
// preprocessor, encoder/sender, receiver, decoder pool, mixer) and the
// control-plane connection to a Hub. Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/voice_client.go's
// VoiceClient struct, replacing its UDP handshake-based session
// management with the reliable control-plane client spec.md §4.11/§4.13
// define.
type VoiceClient struct {
	cfg appconfig.ClientConfig

	control *ControlClient
	table   *StreamTable
	pool    *DecoderPool
	mixer   *Mixer
	device  *Device

	sender   *Sender
	receiver *Receiver

	audioConn *net.UDPConn
	hubAddr   *net.UDPAddr

	logger *zap.Logger
	stop   chan struct{}
}

// New builds (but does not start) a VoiceClient from cfg. If cfg.ClientID
// is empty, a UUID is generated, matching
// voice-client/internal/client/voice_client.go's NewVoiceClient default.
func New(cfg appconfig.ClientConfig, logger *zap.Logger) (*VoiceClient, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}

	table := NewStreamTable()
	pool := NewDecoderPool(table, logger)
	mixer := NewMixer(table)

	audioConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("client: bind audio socket: %w", err)
	}

	hubAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Server, cfg.AudioPort))
	if err != nil {
		audioConn.Close()
		return nil, fmt.Errorf("client: resolve hub audio addr: %w", err)
	}

	sender, err := NewSender(audioConn, hubAddr, cfg.ClientID, nil, logger)
	if err != nil {
		audioConn.Close()
		return nil, fmt.Errorf("client: init sender: %w", err)
	}

	receiver := NewReceiver(audioConn, cfg.ClientID, pool, logger)

	controlAddr := fmt.Sprintf("%s:%d", cfg.Server, cfg.ControlPort)

	vc := &VoiceClient{
		cfg:       cfg,
		control:   NewControlClient(controlAddr),
		table:     table,
		pool:      pool,
		mixer:     mixer,
		sender:    sender,
		receiver:  receiver,
		audioConn: audioConn,
		hubAddr:   hubAddr,
		logger:    logger,
		stop:      make(chan struct{}),
	}
	return vc, nil
}

// Start opens the audio device, registers with the Hub, and launches every
// pipeline goroutine. A partial failure releases anything already
// acquired (spec.md §5).
func (vc *VoiceClient) Start() error {
	device, err := NewDevice(vc.mixer.Output(), vc.mixer.Controller())
	if err != nil {
		return fmt.Errorf("client: open device: %w", err)
	}
	vc.device = device
	vc.sender.input = device.InputQueue()

	localPort := vc.audioConn.LocalAddr().(*net.UDPAddr).Port
	if err := vc.control.Register(vc.cfg.ClientID, localPort, ""); err != nil {
		vc.device.Close()
		return fmt.Errorf("client: register: %w", err)
	}

	vc.pool.Start()
	go vc.mixer.Run()
	go vc.receiver.Run()
	vc.sender.Start(vc.device.LastPlayed)
	go vc.control.RunHeartbeat(vc.cfg.ClientID, vc.stop)

	return nil
}

// Stop tears down every pipeline component and unregisters from the Hub.
func (vc *VoiceClient) Stop() {
	close(vc.stop)
	vc.sender.Stop()
	vc.receiver.Stop()
	vc.pool.Stop()
	vc.mixer.Stop()
	if vc.device != nil {
		vc.device.Close()
	}
	vc.audioConn.Close()
	vc.control.Unregister(vc.cfg.ClientID)
}

// Join joins room, updating the Hub's room membership for this client.
func (vc *VoiceClient) Join(room string) (multicastAddr string, err error) {
	return vc.control.Join(vc.cfg.ClientID, room)
}

// SetTargets sets this client's per-sender target set on the Hub.
func (vc *VoiceClient) SetTargets(targets []string) error {
	return vc.control.SetTargets(vc.cfg.ClientID, targets)
}

// SetHearTargets updates which remote senders this client mixes/plays.
func (vc *VoiceClient) SetHearTargets(senders []string) {
	vc.table.SetHearTargets(senders)
}

// Stats returns a point-in-time snapshot of pipeline counters
// (SPEC_FULL.md §6.1).
func (vc *VoiceClient) Stats() map[string]uint64 {
	return map[string]uint64{
		"decode_queue_depth":    uint64(vc.pool.QueueDepth()),
		"decode_queue_dropped":  vc.pool.Dropped(),
		"stream_count":          uint64(vc.table.StreamCount()),
		"send_errors":           vc.sender.SendErrors(),
		"reflected_rejected":    vc.receiver.ReflectionRejected(),
		"worst_sender_loss_bps": uint64(vc.receiver.WorstSenderLossPercent() * 100),
		"avg_jitter_micros":     uint64(vc.receiver.AvgJitterMillis() * 1000),
	}
}
