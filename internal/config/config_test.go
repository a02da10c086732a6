package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := Load()
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.JournalPath != defaultJournalPath {
		t.Fatalf("JournalPath = %q, want %q", cfg.JournalPath, defaultJournalPath)
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("FUME_LOG_LEVEL", "debug")
	cfg := Load()
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestValidateRejectsEmptyTarget(t *testing.T) {
	cfg := Config{Threads: 1, TimeoutMS: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an empty target")
	}
}

func TestValidateRejectsNonPositiveThreads(t *testing.T) {
	cfg := Config{Target: "127.0.0.1:1883", Threads: 0, TimeoutMS: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for zero threads")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{Target: "127.0.0.1:1883", Threads: 10, TimeoutMS: 200, Transport: "tcp"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := Config{Target: "127.0.0.1:1883", Threads: 10, TimeoutMS: 200, Transport: "quic"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unsupported transport")
	}
}
