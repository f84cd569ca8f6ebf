// Package appconfig loads client and hub configuration the way
// other_examples/dbehnke-dmr-nexus wires viper: programmatic defaults,
// an optional config file in the OS user config directory, and
// VOICEBRIDGE_-prefixed environment overrides — layered over the
// teacher's own JSON-config-file shape and directory convention
// (voice-client/internal/client/config.go).
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const appDirName = "voicebridge"

// AppConfigDir returns the per-user directory configs and logs live in.
func AppConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appconfig: locate config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// ClientConfig mirrors voice-client/internal/client/config.go's field set,
// plus the Hub endpoint settings spec.md §4.15/§6 call for.
type ClientConfig struct {
	Server       string
	ControlPort  int
	AudioPort    int
	DiscoverPort int
	ClientID     string
	Username     string
	MicLabel     string
	SpeakerLabel string
	VADEnabled   bool
	VADThreshold int
	MasterVolume float64
	MicGain      float64
}

// HubConfig holds the Hub's bind addresses and policy knobs.
type HubConfig struct {
	ListenAddr               string
	ControlPort              int
	AudioPort                int
	DiscoveryPort             int
	ClientTimeoutSeconds      int
	DiscoveryIntervalSeconds  int
	MulticastEnabled          bool
	LogLevel                  string
}

func newViper(name string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("json")
	v.SetEnvPrefix("VOICEBRIDGE")
	v.AutomaticEnv()

	dir, err := AppConfigDir()
	if err != nil {
		return nil, err
	}
	v.AddConfigPath(dir)
	v.AddConfigPath(".")
	return v, nil
}

// LoadClientConfig reads client.json (if present) layered with
// VOICEBRIDGE_* environment overrides and built-in defaults.
func LoadClientConfig() (ClientConfig, error) {
	v, err := newViper("client")
	if err != nil {
		return ClientConfig{}, err
	}

	v.SetDefault("server", "")
	v.SetDefault("control_port", 50001)
	v.SetDefault("audio_port", 50002)
	v.SetDefault("discover_port", 50000)
	v.SetDefault("username", "")
	v.SetDefault("mic_label", "")
	v.SetDefault("speaker_label", "")
	v.SetDefault("vad_enabled", true)
	v.SetDefault("vad_threshold", 35)
	v.SetDefault("master_volume", 1.0)
	v.SetDefault("mic_gain", 1.0)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return ClientConfig{}, fmt.Errorf("appconfig: read client config: %w", err)
		}
	}

	return ClientConfig{
		Server:       v.GetString("server"),
		ControlPort:  v.GetInt("control_port"),
		AudioPort:    v.GetInt("audio_port"),
		DiscoverPort: v.GetInt("discover_port"),
		ClientID:     v.GetString("client_id"),
		Username:     v.GetString("username"),
		MicLabel:     v.GetString("mic_label"),
		SpeakerLabel: v.GetString("speaker_label"),
		VADEnabled:   v.GetBool("vad_enabled"),
		VADThreshold: v.GetInt("vad_threshold"),
		MasterVolume: v.GetFloat64("master_volume"),
		MicGain:      v.GetFloat64("mic_gain"),
	}, nil
}

// SaveClientConfig persists cfg to client.json in the app config dir, the
// same round-trippable behavior voice-client/internal/client/config.go
// provided, now also readable by viper on the next load.
func SaveClientConfig(cfg ClientConfig) error {
	dir, err := AppConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("appconfig: create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("server", cfg.Server)
	v.Set("control_port", cfg.ControlPort)
	v.Set("audio_port", cfg.AudioPort)
	v.Set("discover_port", cfg.DiscoverPort)
	v.Set("client_id", cfg.ClientID)
	v.Set("username", cfg.Username)
	v.Set("mic_label", cfg.MicLabel)
	v.Set("speaker_label", cfg.SpeakerLabel)
	v.Set("vad_enabled", cfg.VADEnabled)
	v.Set("vad_threshold", cfg.VADThreshold)
	v.Set("master_volume", cfg.MasterVolume)
	v.Set("mic_gain", cfg.MicGain)

	path := filepath.Join(dir, "client.json")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("appconfig: write client config: %w", err)
	}
	return nil
}

// LoadHubConfig reads hub.json (if present) layered with VOICEBRIDGE_*
// environment overrides and built-in defaults.
func LoadHubConfig() (HubConfig, error) {
	v, err := newViper("hub")
	if err != nil {
		return HubConfig{}, err
	}

	v.SetDefault("listen_addr", "")
	v.SetDefault("control_port", 50001)
	v.SetDefault("audio_port", 50002)
	v.SetDefault("discovery_port", 50000)
	v.SetDefault("client_timeout_seconds", 30)
	v.SetDefault("discovery_interval_seconds", 2)
	v.SetDefault("multicast_enabled", false)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return HubConfig{}, fmt.Errorf("appconfig: read hub config: %w", err)
		}
	}

	return HubConfig{
		ListenAddr:               v.GetString("listen_addr"),
		ControlPort:              v.GetInt("control_port"),
		AudioPort:                v.GetInt("audio_port"),
		DiscoveryPort:            v.GetInt("discovery_port"),
		ClientTimeoutSeconds:     v.GetInt("client_timeout_seconds"),
		DiscoveryIntervalSeconds: v.GetInt("discovery_interval_seconds"),
		MulticastEnabled:         v.GetBool("multicast_enabled"),
		LogLevel:                 v.GetString("log_level"),
	}, nil
}
