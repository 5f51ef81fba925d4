package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OTP_MESSAGEDIRECTOR_ADDRESS",
		"OTP_MESSAGEDIRECTOR_PORT",
		"OTP_CLIENTAGENT_ADDRESS",
		"OTP_CLIENTAGENT_PORT",
		"OTP_STATESERVER_CHANNEL",
		"OTP_DATABASE_CHANNEL",
		"OTP_MESSAGEDIRECTOR_MESSAGE_TIMEOUT",
		"OTP_NET_WANT_THREADS",
		"OTP_ADMIN_ADDRESS",
		"OTP_ADMIN_PORT",
		"OTP_ADMIN_TOKEN",
		"OTP_LOG_LEVEL",
		"OTP_LOG_PATH",
		"OTP_LOG_MAX_SIZE_MB",
		"OTP_LOG_MAX_BACKUPS",
		"OTP_LOG_MAX_AGE_DAYS",
		"OTP_LOG_COMPRESS",
		"OTP_SCHEMA_PATH",
		"OTP_REPLAYLOG_PATH",
		"OTP_REPLAYLOG_RETENTION_BUNDLES",
		"OTP_REPLAYLOG_RETENTION_AGE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.MessageDirectorAddress != DefaultMessageDirectorAddress {
		t.Fatalf("expected default MD address %q, got %q", DefaultMessageDirectorAddress, cfg.MessageDirectorAddress)
	}
	if cfg.MessageDirectorPort != DefaultMessageDirectorPort {
		t.Fatalf("expected default MD port %d, got %d", DefaultMessageDirectorPort, cfg.MessageDirectorPort)
	}
	if cfg.StateServerChannel != DefaultStateServerChannel {
		t.Fatalf("expected default SS channel %d, got %d", DefaultStateServerChannel, cfg.StateServerChannel)
	}
	if cfg.DatabaseChannel != DefaultDatabaseChannel {
		t.Fatalf("expected default database channel %d, got %d", DefaultDatabaseChannel, cfg.DatabaseChannel)
	}
	if cfg.MessageTimeout != DefaultMessageTimeout {
		t.Fatalf("expected default message timeout %v, got %v", DefaultMessageTimeout, cfg.MessageTimeout)
	}
	if cfg.MessageTimeout != 15*time.Second {
		t.Fatalf("expected spec default of 15s, got %v", cfg.MessageTimeout)
	}
	if !cfg.NetWantThreads {
		t.Fatalf("expected net-want-threads to default true")
	}
	if cfg.AdminToken != "" {
		t.Fatalf("expected admin token to be empty by default")
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.SchemaPath != DefaultSchemaPath {
		t.Fatalf("expected default schema path %q, got %q", DefaultSchemaPath, cfg.SchemaPath)
	}
	if cfg.ReplayRetentionBundles != DefaultReplayRetentionBundles {
		t.Fatalf("expected default replay retention bundles %d, got %d", DefaultReplayRetentionBundles, cfg.ReplayRetentionBundles)
	}
}

func TestLoadOverridesMessageTimeoutFromSeconds(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTP_MESSAGEDIRECTOR_MESSAGE_TIMEOUT", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.MessageTimeout != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s message timeout, got %v", cfg.MessageTimeout)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTP_MESSAGEDIRECTOR_PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid MD port")
	}
}

func TestLoadAccumulatesMultipleProblems(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTP_MESSAGEDIRECTOR_PORT", "not-a-port")
	t.Setenv("OTP_NET_WANT_THREADS", "not-a-bool")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected accumulated error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "OTP_MESSAGEDIRECTOR_PORT") || !strings.Contains(msg, "OTP_NET_WANT_THREADS") {
		t.Fatalf("expected both problems reported, got %q", msg)
	}
}
