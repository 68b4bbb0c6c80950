package main

import (
	"bytes"
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Lifecycle(t *testing.T) {
	dir := t.TempDir()

	steps := []struct {
		args       []string
		wantCode   int
		wantStdout string
	}{
		{[]string{"get", "key1"}, 0, "Key not found\n"},
		{[]string{"set", "key1", "value1"}, 0, ""},
		{[]string{"get", "key1"}, 0, "value1\n"},
		{[]string{"set", "key1", "value2"}, 0, ""},
		{[]string{"get", "key1"}, 0, "value2\n"},
		{[]string{"compact"}, 0, ""},
		{[]string{"get", "key1"}, 0, "value2\n"},
		{[]string{"rm", "key1"}, 0, ""},
		{[]string{"rm", "key1"}, 1, "Key not found\n"},
		{[]string{"get", "key1"}, 0, "Key not found\n"},
	}

	for i, s := range steps {
		code, stdout, stderr := runCLI(append([]string{"-dir", dir}, s.args...)...)
		if code != s.wantCode {
			t.Errorf("step %d %v: exit code = %d, want %d (stderr %q)", i, s.args, code, s.wantCode, stderr)
		}
		if stdout != s.wantStdout {
			t.Errorf("step %d %v: stdout = %q, want %q", i, s.args, stdout, s.wantStdout)
		}
	}
}

func TestRun_Stats(t *testing.T) {
	dir := t.TempDir()
	runCLI("-dir", dir, "set", "a", "1")

	code, stdout, _ := runCLI("-dir", dir, "stats")
	if code != 0 {
		t.Fatalf("stats exit code = %d", code)
	}
	for _, want := range []string{"keys: 1\n", "generation: "} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stats output %q missing %q", stdout, want)
		}
	}
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{{}, {"get"}, {"set", "k"}, {"rm"}, {"unknown"}, {"compact", "x"}} {
		if code, _, _ := runCLI(append([]string{"-dir", t.TempDir()}, args...)...); code != 2 {
			t.Errorf("run(%q) = %d, want 2", args, code)
		}
	}
}

func TestRun_BadgerEngine(t *testing.T) {
	dir := t.TempDir()
	badger := func(args ...string) (int, string, string) {
		return runCLI(append([]string{"-engine", "badger", "-dir", dir}, args...)...)
	}

	if code, _, stderr := badger("set", "a", "1"); code != 0 {
		t.Fatalf("set exit code = %d: %s", code, stderr)
	}
	if _, stdout, _ := badger("get", "a"); stdout != "1\n" {
		t.Errorf("get stdout = %q, want 1", stdout)
	}
	if code, _, stderr := badger("compact"); code != 0 {
		t.Errorf("compact exit code = %d: %s", code, stderr)
	}
	if code, stdout, _ := badger("stats"); code != 0 || !strings.Contains(stdout, "engine: badger\n") {
		t.Errorf("stats = %d, %q", code, stdout)
	}
}

func TestRun_UnknownEngine(t *testing.T) {
	code, _, stderr := runCLI("-engine", "sled", "-dir", t.TempDir(), "get", "a")
	if code != 1 || !strings.Contains(stderr, "unknown storage engine") {
		t.Errorf("run() = %d, stderr %q", code, stderr)
	}
}

func TestRun_CompactUnsupported(t *testing.T) {
	addr := os.Getenv("KV_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("redis not available at %s", addr)
	}
	conn.Close()

	code, _, stderr := runCLI("-engine", "redis", "-redis", addr, "compact")
	if code != 1 || !strings.Contains(stderr, "compact is not supported by the redis engine") {
		t.Errorf("compact = %d, stderr %q", code, stderr)
	}
}
