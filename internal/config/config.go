package config

import (
	"fmt"
	"os"
)

// Config lists the tunable parameters for a fuzzing or replay invocation.
// CLI flags (see cmd/fume) populate the run parameters directly; Load only
// supplies the handful of values still reasonably sourced from the
// environment (logging and persistence locations an operator rarely wants
// to retype on every invocation).
type Config struct {
	Target        string
	BrokerCommand string
	Threads       int
	TimeoutMS     int
	Sequential    bool
	Transport     string // "tcp" or "ws"
	SeedCVECorpus bool

	LogLevel       string
	JournalPath    string
	ThreadsDir     string
	CrashesDir     string
	PacketPoolPath string
	StatusAddr     string
}

const (
	DefaultTarget    = "127.0.0.1:1883"
	DefaultThreads   = 100
	DefaultTimeoutMS = 200
	DefaultTransport = "tcp"

	defaultLogLevel       = "info"
	defaultJournalPath    = "fume.db"
	defaultThreadsDir     = "threads"
	defaultCrashesDir     = "crashes"
	defaultPacketPoolPath = "packet_pool.toml"
	defaultStatusAddr     = ":9090"
)

// Load derives the ambient (non-CLI) configuration values from environment
// variables, falling back to defaults.
func Load() Config {
	cfg := Config{
		LogLevel:       defaultLogLevel,
		JournalPath:    defaultJournalPath,
		ThreadsDir:     defaultThreadsDir,
		CrashesDir:     defaultCrashesDir,
		PacketPoolPath: defaultPacketPoolPath,
		StatusAddr:     defaultStatusAddr,
	}

	if v := os.Getenv("FUME_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FUME_JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("FUME_THREADS_DIR"); v != "" {
		cfg.ThreadsDir = v
	}
	if v := os.Getenv("FUME_CRASHES_DIR"); v != "" {
		cfg.CrashesDir = v
	}
	if v := os.Getenv("FUME_PACKET_POOL_PATH"); v != "" {
		cfg.PacketPoolPath = v
	}
	if v := os.Getenv("FUME_STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}

	return cfg
}

// Validate checks the fields a cobra command fills in before wiring the
// engine together.
func (c Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("config: target must not be empty")
	}
	if c.Threads <= 0 {
		return fmt.Errorf("config: threads must be positive, got %d", c.Threads)
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("config: timeout_ms must be positive, got %d", c.TimeoutMS)
	}
	if c.Transport != "tcp" && c.Transport != "ws" {
		return fmt.Errorf("config: transport must be tcp or ws, got %q", c.Transport)
	}
	return nil
}
