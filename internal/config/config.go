// Package config loads cluster runtime configuration from OTP_-prefixed
// environment variables, adapted from the teacher's broker config loader:
// same accumulate-every-problem validation pattern, same getString helper,
// retargeted to the OTP cluster's surface (§6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMessageDirectorAddress is the TCP address the Message
	// Director listens on for participant connections.
	DefaultMessageDirectorAddress = "0.0.0.0"
	// DefaultMessageDirectorPort is the default MD listener port.
	DefaultMessageDirectorPort = 7100
	// DefaultClientAgentAddress is the address client-agent-facing
	// listeners bind to.
	DefaultClientAgentAddress = "0.0.0.0"
	// DefaultClientAgentPort is the default client-agent listener port.
	DefaultClientAgentPort = 7101
	// DefaultStateServerChannel is the well-known channel the State
	// Server listens on.
	DefaultStateServerChannel uint64 = 2
	// DefaultDatabaseChannel is the well-known channel the database
	// component listens on.
	DefaultDatabaseChannel uint64 = 3
	// DefaultMessageTimeout is the MD requeue-vs-drop staleness window
	// (§4.2), matching spec.md's documented 15.0s default.
	DefaultMessageTimeout = 15 * time.Second
	// DefaultNetWantThreads is the default for NetWantThreads. The value is
	// loaded and validated but nothing reads it: the process always runs a
	// single accept goroutine.
	DefaultNetWantThreads = true

	// DefaultAdminAddress is the address the admin HTTP/websocket plane
	// binds to.
	DefaultAdminAddress = "127.0.0.1"
	// DefaultAdminPort is the default admin plane port.
	DefaultAdminPort = 7200
	// DefaultAdminToken is the admin bearer token. When it is empty,
	// /admin/ws is served without authentication and the replaylog sweep
	// endpoint refuses every request.
	DefaultAdminToken = ""

	// DefaultLogLevel controls verbosity for cluster logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "cluster.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultSchemaPath is where .dc schema sources are loaded from.
	DefaultSchemaPath = "schema"

	// DefaultReplayLogPath is the bundle root directory for replaylog.
	DefaultReplayLogPath = "replaylog"
	// DefaultReplayRetentionBundles bounds how many replay bundles are kept.
	DefaultReplayRetentionBundles = 50
	// DefaultReplayRetentionAge bounds how long a replay bundle is kept.
	DefaultReplayRetentionAge = 7 * 24 * time.Hour
)

// Config captures all runtime tunables for the cluster process.
type Config struct {
	MessageDirectorAddress string
	MessageDirectorPort    int
	ClientAgentAddress     string
	ClientAgentPort        int
	StateServerChannel     uint64
	DatabaseChannel        uint64
	MessageTimeout         time.Duration
	NetWantThreads         bool

	AdminAddress string
	AdminPort    int
	AdminToken   string

	Logging LoggingConfig

	SchemaPath string

	ReplayLogPath           string
	ReplayRetentionBundles  int
	ReplayRetentionAge      time.Duration
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

// Load reads the cluster configuration from environment variables, applying
// sane defaults and returning every validation problem found rather than
// failing on the first one.
func Load() (*Config, error) {
	cfg := &Config{
		MessageDirectorAddress: getString("OTP_MESSAGEDIRECTOR_ADDRESS", DefaultMessageDirectorAddress),
		MessageDirectorPort:    DefaultMessageDirectorPort,
		ClientAgentAddress:     getString("OTP_CLIENTAGENT_ADDRESS", DefaultClientAgentAddress),
		ClientAgentPort:        DefaultClientAgentPort,
		StateServerChannel:     DefaultStateServerChannel,
		DatabaseChannel:        DefaultDatabaseChannel,
		MessageTimeout:         DefaultMessageTimeout,
		NetWantThreads:         DefaultNetWantThreads,

		AdminAddress: getString("OTP_ADMIN_ADDRESS", DefaultAdminAddress),
		AdminPort:    DefaultAdminPort,
		AdminToken:   strings.TrimSpace(os.Getenv("OTP_ADMIN_TOKEN")),

		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("OTP_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("OTP_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},

		SchemaPath: getString("OTP_SCHEMA_PATH", DefaultSchemaPath),

		ReplayLogPath:          getString("OTP_REPLAYLOG_PATH", DefaultReplayLogPath),
		ReplayRetentionBundles: DefaultReplayRetentionBundles,
		ReplayRetentionAge:     DefaultReplayRetentionAge,
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("OTP_MESSAGEDIRECTOR_PORT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("OTP_MESSAGEDIRECTOR_PORT must be a valid port, got %q", raw))
		} else {
			cfg.MessageDirectorPort = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_CLIENTAGENT_PORT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("OTP_CLIENTAGENT_PORT must be a valid port, got %q", raw))
		} else {
			cfg.ClientAgentPort = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_STATESERVER_CHANNEL")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("OTP_STATESERVER_CHANNEL must be a non-negative integer, got %q", raw))
		} else {
			cfg.StateServerChannel = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_DATABASE_CHANNEL")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("OTP_DATABASE_CHANNEL must be a non-negative integer, got %q", raw))
		} else {
			cfg.DatabaseChannel = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_MESSAGEDIRECTOR_MESSAGE_TIMEOUT")); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds <= 0 {
			problems = append(problems, fmt.Sprintf("OTP_MESSAGEDIRECTOR_MESSAGE_TIMEOUT must be a positive number of seconds, got %q", raw))
		} else {
			cfg.MessageTimeout = time.Duration(seconds * float64(time.Second))
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_NET_WANT_THREADS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("OTP_NET_WANT_THREADS must be a boolean value, got %q", raw))
		} else {
			cfg.NetWantThreads = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_ADMIN_PORT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("OTP_ADMIN_PORT must be a valid port, got %q", raw))
		} else {
			cfg.AdminPort = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("OTP_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("OTP_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("OTP_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("OTP_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_REPLAYLOG_RETENTION_BUNDLES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("OTP_REPLAYLOG_RETENTION_BUNDLES must be a non-negative integer, got %q", raw))
		} else {
			cfg.ReplayRetentionBundles = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("OTP_REPLAYLOG_RETENTION_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("OTP_REPLAYLOG_RETENTION_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.ReplayRetentionAge = duration
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
