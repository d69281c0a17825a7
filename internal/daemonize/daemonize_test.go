package daemonize

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestWritePIDFileWritesCurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocvsmd.pid")
	f, err := WritePIDFile(path)
	if err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	defer f.Close()

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		t.Fatalf("pid file did not contain a plain integer: %q", body)
	}
	if got != os.Getpid() {
		t.Fatalf("pid file contains %d, want %d", got, os.Getpid())
	}
}

func TestWritePIDFileRejectsSecondInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocvsmd.pid")
	first, err := WritePIDFile(path)
	if err != nil {
		t.Fatalf("first WritePIDFile: %v", err)
	}
	defer first.Close()

	if _, err := WritePIDFile(path); err == nil {
		t.Fatal("expected a second WritePIDFile against the same path to fail (already locked)")
	}
}

func TestWritePIDFileReusableAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocvsmd.pid")
	first, err := WritePIDFile(path)
	if err != nil {
		t.Fatalf("first WritePIDFile: %v", err)
	}
	first.Close()

	second, err := WritePIDFile(path)
	if err != nil {
		t.Fatalf("WritePIDFile after the first closed its file: %v", err)
	}
	second.Close()
}
