// Package config loads runtime tunables for the mcio-core controller from
// the environment, applying documented defaults and returning descriptive
// errors for invalid overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultHost is the loopback host the core binds and connects to
	// unless MCIO_HOST overrides it (spec §1 Non-goals).
	DefaultHost = "localhost"
	// DefaultActionPort is the default action-channel (agent -> simulator) port.
	DefaultActionPort = 4001
	// DefaultObservationPort is the default observation-channel (simulator -> agent) port.
	DefaultObservationPort = 8001

	// DefaultProtocolVersion is the protocol version stamped on every ActionPacket
	// and checked against every received ObservationPacket.
	DefaultProtocolVersion = 0

	// DefaultSettleInterval is how long the action transport waits after
	// binding before accepting its first Send, to ride out the slow-joiner
	// window before a simulator subscribes.
	DefaultSettleInterval = 500 * time.Millisecond

	// DefaultMatchSequences toggles the synchronous sequence-matching loop.
	DefaultMatchSequences = true
	// DefaultMaxSkipIterations bounds send_and_recv_match's stale-observation
	// skip loop before it surfaces MatchTimeout.
	DefaultMaxSkipIterations = 256

	// DefaultThroughputLogInterval controls how often the controller logs a
	// throughput summary line.
	DefaultThroughputLogInterval = 10 * time.Second

	// DefaultLogLevel controls verbosity for mcio-core logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "mcio-core.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultAdminAddr is where the read-only admin HTTP surface listens, if enabled.
	DefaultAdminAddr = "localhost:8090"
)

// Config captures every runtime tunable for a Controller.
type Config struct {
	Host             string
	ActionPort       int
	ObservationPort  int
	ProtocolVersion  uint32
	SettleInterval   time.Duration
	MatchSequences   bool
	MaxSkipIters     int
	ThroughputWindow time.Duration

	Logging LoggingConfig

	AdminAddr    string
	AdminEnabled bool

	ReplayDir string
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// envLookup abstracts os.LookupEnv so tests can supply a fake environment
// without mutating process-wide state.
type envLookup func(key string) (string, bool)

// Load reads the controller configuration from the environment, applying
// sane defaults and accumulating descriptive errors for invalid overrides
// rather than failing on the first bad variable. A nil lookup defaults to
// os.LookupEnv.
func Load(lookup envLookup) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := &Config{
		Host:             getString(lookup, "MCIO_HOST", DefaultHost),
		ActionPort:       DefaultActionPort,
		ObservationPort:  DefaultObservationPort,
		ProtocolVersion:  DefaultProtocolVersion,
		SettleInterval:   DefaultSettleInterval,
		MatchSequences:   DefaultMatchSequences,
		MaxSkipIters:     DefaultMaxSkipIterations,
		ThroughputWindow: DefaultThroughputLogInterval,
		Logging: LoggingConfig{
			Level:      getString(lookup, "MCIO_LOG_LEVEL", DefaultLogLevel),
			Path:       getString(lookup, "MCIO_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
		AdminAddr: getString(lookup, "MCIO_ADMIN_ADDR", DefaultAdminAddr),
		ReplayDir: strings.TrimSpace(getString(lookup, "MCIO_REPLAY_DIR", "")),
	}

	var problems []string

	if raw := trimmedLookup(lookup, "MCIO_ACTION_PORT"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("MCIO_ACTION_PORT must be a valid port, got %q", raw))
		} else {
			cfg.ActionPort = value
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_OBSERVATION_PORT"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("MCIO_OBSERVATION_PORT must be a valid port, got %q", raw))
		} else {
			cfg.ObservationPort = value
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_PROTOCOL_VERSION"); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MCIO_PROTOCOL_VERSION must be a non-negative integer, got %q", raw))
		} else {
			cfg.ProtocolVersion = uint32(value)
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_SETTLE_INTERVAL"); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("MCIO_SETTLE_INTERVAL must be a non-negative duration, got %q", raw))
		} else {
			cfg.SettleInterval = duration
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_MATCH_SEQUENCES"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MCIO_MATCH_SEQUENCES must be a boolean value, got %q", raw))
		} else {
			cfg.MatchSequences = value
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_MAX_SKIP_ITERATIONS"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MCIO_MAX_SKIP_ITERATIONS must be a positive integer, got %q", raw))
		} else {
			cfg.MaxSkipIters = value
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_THROUGHPUT_WINDOW"); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("MCIO_THROUGHPUT_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ThroughputWindow = duration
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_LOG_MAX_SIZE_MB"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MCIO_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_LOG_MAX_BACKUPS"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MCIO_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_LOG_MAX_AGE_DAYS"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MCIO_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_LOG_COMPRESS"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MCIO_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := trimmedLookup(lookup, "MCIO_ADMIN_ENABLED"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MCIO_ADMIN_ENABLED must be a boolean value, got %q", raw))
		} else {
			cfg.AdminEnabled = value
		}
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

// ActionAddr returns the host:port the action transport binds to.
func (c *Config) ActionAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.ActionPort)
}

// ObservationAddr returns the host:port the observation transport connects to.
func (c *Config) ObservationAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.ObservationPort)
}

func getString(lookup envLookup, key, fallback string) string {
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func trimmedLookup(lookup envLookup, key string) string {
	value, ok := lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
