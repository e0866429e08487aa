package main

import "testing"

func TestParseFlagsDefaults(t *testing.T) {
	flags, exit, code := parseFlags(nil)
	if exit {
		t.Fatalf("expected no exit, got code %d", code)
	}
	defaults := defaultFlags()
	if flags.RPCPort != defaults.RPCPort {
		t.Errorf("RPCPort = %d, want %d", flags.RPCPort, defaults.RPCPort)
	}
	if flags.DBPath != defaults.DBPath {
		t.Errorf("DBPath = %q, want %q", flags.DBPath, defaults.DBPath)
	}
	if flags.Debug {
		t.Error("Debug should default to false")
	}
	if flags.StartBlock != 0 {
		t.Errorf("StartBlock = %d, want 0", flags.StartBlock)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	flags, exit, code := parseFlags([]string{
		"--rpc-port", "9000",
		"--db-path", "/tmp/submitter-db",
		"--debug",
		"--start-block", "12345",
	})
	if exit {
		t.Fatalf("expected no exit, got code %d", code)
	}
	if flags.RPCPort != 9000 {
		t.Errorf("RPCPort = %d, want 9000", flags.RPCPort)
	}
	if flags.DBPath != "/tmp/submitter-db" {
		t.Errorf("DBPath = %q, want /tmp/submitter-db", flags.DBPath)
	}
	if !flags.Debug {
		t.Error("Debug should be true")
	}
	if flags.StartBlock != 12345 {
		t.Errorf("StartBlock = %d, want 12345", flags.StartBlock)
	}
}

func TestParseFlagsVersion(t *testing.T) {
	_, exit, code := parseFlags([]string{"--version"})
	if !exit || code != 0 {
		t.Fatalf("expected exit=true code=0, got exit=%v code=%d", exit, code)
	}
}

func TestParseFlagsInvalidFlag(t *testing.T) {
	_, exit, code := parseFlags([]string{"--not-a-flag"})
	if !exit || code != 2 {
		t.Fatalf("expected exit=true code=2, got exit=%v code=%d", exit, code)
	}
}
