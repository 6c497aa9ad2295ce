package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/knadh/koanf/v2"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.UDPPayloadSize != DefaultUDPPayloadSize {
		t.Errorf("expected UDPPayloadSize=%d, got %d", DefaultUDPPayloadSize, cfg.UDPPayloadSize)
	}
	if cfg.ProbeTimeoutSeconds != 60 {
		t.Errorf("expected ProbeTimeoutSeconds=60, got %d", cfg.ProbeTimeoutSeconds)
	}
	if cfg.ResponseQueueMaxDelayMS != 500 {
		t.Errorf("expected ResponseQueueMaxDelayMS=500, got %d", cfg.ResponseQueueMaxDelayMS)
	}
	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("MDNS_UDP_PAYLOAD_SIZE", "1024")
	t.Setenv("MDNS_PROBE_TIMEOUT_SECONDS", "30")
	t.Setenv("MDNS_ENV", "dev")
	t.Setenv("MDNS_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.UDPPayloadSize != 1024 {
		t.Errorf("expected UDPPayloadSize=1024, got %d", cfg.UDPPayloadSize)
	}
	if cfg.ProbeTimeoutSeconds != 30 {
		t.Errorf("expected ProbeTimeoutSeconds=30, got %d", cfg.ProbeTimeoutSeconds)
	}
	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %q", cfg.Env)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %q", cfg.LogLevel)
	}
}

func TestLoad_WhenLoaderFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error {
		return errors.New("mocked error")
	}
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatalf("expected wrapped mocked error, got %v", err)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("MDNS_ENV", "staging")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid MDNS_ENV, got nil")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("MDNS_LOG_LEVEL", "trace")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid MDNS_LOG_LEVEL, got nil")
	}
}

func TestLoad_PayloadSizeTooSmall(t *testing.T) {
	t.Setenv("MDNS_UDP_PAYLOAD_SIZE", "10")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for undersized UDP payload size, got nil")
	}
}
