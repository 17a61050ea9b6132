package config

import "testing"

func fakeEnv(values map[string]string) envLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(fakeEnv(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != DefaultHost {
		t.Fatalf("host = %q, want %q", cfg.Host, DefaultHost)
	}
	if cfg.ActionPort != DefaultActionPort {
		t.Fatalf("action port = %d, want %d", cfg.ActionPort, DefaultActionPort)
	}
	if cfg.ObservationPort != DefaultObservationPort {
		t.Fatalf("observation port = %d, want %d", cfg.ObservationPort, DefaultObservationPort)
	}
	if !cfg.MatchSequences {
		t.Fatal("match sequences should default to true")
	}
	if cfg.MaxSkipIters != DefaultMaxSkipIterations {
		t.Fatalf("max skip iterations = %d, want %d", cfg.MaxSkipIters, DefaultMaxSkipIterations)
	}
	if cfg.ActionAddr() != "localhost:4001" {
		t.Fatalf("action addr = %q", cfg.ActionAddr())
	}
	if cfg.ObservationAddr() != "localhost:8001" {
		t.Fatalf("observation addr = %q", cfg.ObservationAddr())
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(fakeEnv(map[string]string{
		"MCIO_ACTION_PORT":         "14001",
		"MCIO_OBSERVATION_PORT":    "18001",
		"MCIO_MATCH_SEQUENCES":     "false",
		"MCIO_MAX_SKIP_ITERATIONS": "16",
		"MCIO_SETTLE_INTERVAL":     "10ms",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ActionPort != 14001 || cfg.ObservationPort != 18001 {
		t.Fatalf("unexpected ports: %+v", cfg)
	}
	if cfg.MatchSequences {
		t.Fatal("match sequences should be disabled")
	}
	if cfg.MaxSkipIters != 16 {
		t.Fatalf("max skip iterations = %d, want 16", cfg.MaxSkipIters)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(fakeEnv(map[string]string{
		"MCIO_ACTION_PORT": "not-a-port",
	}))
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestLoadAccumulatesMultipleProblems(t *testing.T) {
	_, err := Load(fakeEnv(map[string]string{
		"MCIO_ACTION_PORT":      "bogus",
		"MCIO_OBSERVATION_PORT": "also-bogus",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
}
