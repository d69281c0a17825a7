package pipe

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
)

func TestServerClientRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")

	exec := executor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go exec.Run(ctx)

	serverEvents := make(chan ServerEvent, 16)
	srv, err := Listen(exec, "unix", sock, func(ev ServerEvent) { serverEvents <- ev })
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	clientEvents := make(chan ClientEvent, 16)
	cli, err := Dial(exec, "unix", sock, func(ev ClientEvent) { clientEvents <- ev })
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	waitFor(t, serverEvents, ServerConnected)
	waitFor(t, clientEvents, ClientConnected)

	if err := cli.SendMessage([]byte("ping")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	ev := waitFor(t, serverEvents, ServerMessage)
	if string(ev.Payload) != "ping" {
		t.Fatalf("unexpected payload: %q", ev.Payload)
	}

	if err := srv.SendMessage(ev.ClientID, []byte("pong")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	cev := waitForClient(t, clientEvents, ClientMessage)
	if string(cev.Payload) != "pong" {
		t.Fatalf("unexpected payload: %q", cev.Payload)
	}

	cli.Close()
	waitFor(t, serverEvents, ServerDisconnected)
}

func waitFor(t *testing.T, ch chan ServerEvent, kind ServerEventKind) ServerEvent {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Kind != kind {
			t.Fatalf("expected event kind %v, got %v", kind, ev.Kind)
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event kind %v", kind)
		return ServerEvent{}
	}
}

func waitForClient(t *testing.T, ch chan ClientEvent, kind ClientEventKind) ClientEvent {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Kind != kind {
			t.Fatalf("expected event kind %v, got %v", kind, ev.Kind)
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event kind %v", kind)
		return ClientEvent{}
	}
}
