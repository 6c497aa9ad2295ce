// Package config loads and validates runtime configuration for the mDNS
// protocol engine: the UDP payload cap, the optional interface allow-list,
// and the probing/queueing tunables named in the collaborator contract.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultUDPPayloadSize is the RFC 6762-recommended default for mDNS
// datagrams absent any path-MTU information.
const DefaultUDPPayloadSize = 1440

// Config holds the engine's tunables. Everything here is a value type so a
// Config can be shared read-only across every responder instance. No
// constructor in this module takes a Config: the wire builders, the response
// queue and the prober take the payload cap as a plain capBytes int, and the
// prober's 60 s timeout and the queue's 500 ms MAX_DELAY are package
// constants that do not read ProbeTimeoutSeconds or ResponseQueueMaxDelayMS.
type Config struct {
	// UDPPayloadSize bounds encoded packet size (§6); C3 builders fail
	// rather than silently truncate when a packet would exceed it.
	UDPPayloadSize int `koanf:"udp_payload_size" validate:"required,gte=512,lte=9000"`

	// InterfaceFilter optionally restricts which network interface
	// identifiers the transport facade should bind. Interface enumeration
	// itself is out of scope; this is just the allow-list value.
	InterfaceFilter []string `koanf:"interface_filter"`

	// ProbeTimeoutSeconds is the configured probing timeout (§7). The Prober
	// does not read it; it gives up with ErrProbeTimeout after its own fixed
	// 60 s.
	ProbeTimeoutSeconds int `koanf:"probe_timeout_seconds" validate:"required,gte=1"`

	// ResponseQueueMaxDelayMS is the configured MAX_DELAY from §4.4: the cap
	// on how long a merged QueuedResponse may sit past its original
	// time-of-creation. The response queue does not read it; it uses its own
	// fixed 500 ms.
	ResponseQueueMaxDelayMS int `koanf:"response_queue_max_delay_ms" validate:"required,gte=1"`

	// Env is the runtime environment, either "dev" or "prod"; it only
	// affects logger formatting (§10.1).
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
}

// envLoader loads environment variables with the prefix "MDNS_", lower-cased
// and stripped of that prefix. Replaced in tests to simulate loader failure.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "MDNS_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "MDNS_")), value
		},
	}), nil)
}

// Load parses environment variables into a Config, applying defaults first
// and validating the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Config{
		UDPPayloadSize:          DefaultUDPPayloadSize,
		ProbeTimeoutSeconds:     60,
		ResponseQueueMaxDelayMS: 500,
		Env:                     "prod",
		LogLevel:                "info",
	}, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
