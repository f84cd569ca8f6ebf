package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hearline/voicebridge/internal/appconfig"
	"github.com/hearline/voicebridge/internal/client"
	"github.com/hearline/voicebridge/internal/telemetry"
)

// main runs the client as a headless CLI process: the GUI (button model,
// dialogs) is out of scope per spec.md §1, so operators drive it with a
// small stdin command loop instead of
// _examples/Zokiio-ovc/voice-client/main.go's fyne GUI.
func main() {
	cfg, err := appconfig.LoadClientConfig()
	if err != nil {
		log.Fatalf("load client config: %v", err)
	}
	if cfg.Server == "" {
		log.Fatal("no server configured: set VOICEBRIDGE_SERVER or client.json's \"server\"")
	}

	logger, err := telemetry.NewLogger("client", "info")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	vc, err := client.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build client", zap.Error(err))
	}
	if err := vc.Start(); err != nil {
		logger.Fatal("failed to start client", zap.Error(err))
	}
	defer vc.Stop()

	logger.Info("client started", zap.String("server", cfg.Server))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go runCommandLoop(vc, logger)

	<-sig
	logger.Info("shutting down")
}

func runCommandLoop(vc *client.VoiceClient, logger *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: join <room> | targets <csv> | hear <csv> | stats | quit")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "join":
			if len(fields) < 2 {
				fmt.Println("usage: join <room>")
				continue
			}
			addr, err := vc.Join(fields[1])
			if err != nil {
				fmt.Println("join failed:", err)
				continue
			}
			fmt.Println("joined, multicast group:", addr)
		case "targets":
			if len(fields) < 2 {
				fmt.Println("usage: targets <csv>")
				continue
			}
			if err := vc.SetTargets(strings.Split(fields[1], ",")); err != nil {
				fmt.Println("targets failed:", err)
			}
		case "hear":
			if len(fields) < 2 {
				vc.SetHearTargets(nil)
				continue
			}
			vc.SetHearTargets(strings.Split(fields[1], ","))
		case "stats":
			for k, v := range vc.Stats() {
				fmt.Printf("%s=%d\n", k, v)
			}
		case "quit":
			logger.Info("quit requested")
			os.Exit(0)
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
