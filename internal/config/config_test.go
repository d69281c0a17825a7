package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testTOML = `
[cyphal.application]
node_id = 42
unique_id = []

[cyphal.transport]
interfaces = ["vcan0"]

[file_server]
roots = ["/usr/share/ocvsmd"]

[ipc]
connections = ["unix:/var/run/ocvsmd.sock"]

[logging]
level = "info"
`

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ocvsmd.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDecodesAllSections(t *testing.T) {
	path := writeTestConfig(t, testTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Cyphal.Application.NodeID == nil || *cfg.Cyphal.Application.NodeID != 42 {
		t.Fatalf("unexpected node_id: %+v", cfg.Cyphal.Application.NodeID)
	}
	if len(cfg.Cyphal.Transport.Interfaces) != 1 || cfg.Cyphal.Transport.Interfaces[0] != "vcan0" {
		t.Fatalf("unexpected interfaces: %+v", cfg.Cyphal.Transport.Interfaces)
	}
	if len(cfg.FileServer.Roots) != 1 || cfg.FileServer.Roots[0] != "/usr/share/ocvsmd" {
		t.Fatalf("unexpected roots: %+v", cfg.FileServer.Roots)
	}
	if len(cfg.IPC.Connections) != 1 || cfg.IPC.Connections[0] != "unix:/var/run/ocvsmd.sock" {
		t.Fatalf("unexpected connections: %+v", cfg.IPC.Connections)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging.level: %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestSetFileServerRootsAndSave(t *testing.T) {
	path := writeTestConfig(t, testTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.SetFileServerRoots([]string{"/a", "/b"})
	if len(cfg.FileServer.Roots) != 2 {
		t.Fatalf("SetFileServerRoots did not update in-memory roots: %+v", cfg.FileServer.Roots)
	}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload after Save: %v", err)
	}
	if len(reloaded.FileServer.Roots) != 2 || reloaded.FileServer.Roots[0] != "/a" || reloaded.FileServer.Roots[1] != "/b" {
		t.Fatalf("Save did not persist the new roots: %+v", reloaded.FileServer.Roots)
	}
}

func TestWatchForChangesReloadsOnWrite(t *testing.T) {
	path := writeTestConfig(t, testTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed := make(chan struct{}, 1)
	cfg.WatchForChanges(func(c *Config) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	updated := `
[cyphal.application]
node_id = 42
unique_id = []

[cyphal.transport]
interfaces = ["vcan0"]

[file_server]
roots = ["/new/root"]

[ipc]
connections = ["unix:/var/run/ocvsmd.sock"]

[logging]
level = "info"
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("WatchForChanges did not fire within 5s of the config file changing")
	}
}
