package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/hearline/voicebridge/internal/appconfig"
	"github.com/hearline/voicebridge/internal/hub"
	"github.com/hearline/voicebridge/internal/telemetry"
)

func main() {
	cfg, err := appconfig.LoadHubConfig()
	if err != nil {
		log.Fatalf("load hub config: %v", err)
	}

	logger, err := telemetry.NewLogger("hub", cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	h, err := hub.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to start hub", zap.Error(err))
	}
	defer h.Close()

	logger.Info("hub listening",
		zap.String("addr", cfg.ListenAddr),
		zap.Int("control_port", cfg.ControlPort),
		zap.Int("audio_port", cfg.AudioPort),
	)

	if err := h.Run(); err != nil {
		logger.Fatal("hub exited", zap.Error(err))
	}
}
