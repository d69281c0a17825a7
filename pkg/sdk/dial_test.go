package sdk

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
)

func newTestExec(t *testing.T) *executor.Executor {
	t.Helper()
	exec := executor.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go exec.Run(ctx)
	return exec
}

func TestDialGivesUpAfterMaxRetryCount(t *testing.T) {
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)
	sock := filepath.Join(t.TempDir(), "never-listens.sock")

	start := time.Now()
	_, err := Dial(context.Background(), exec, log, "unix", sock, route.ProtocolVersion{Major: 1}, DialOptions{
		MaxRetryInterval: 10 * time.Millisecond,
		MaxRetryCount:    3,
	})
	if err == nil {
		t.Fatal("expected Dial to give up when nothing is listening")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Dial took too long to give up: %s", elapsed)
	}
}

func TestDialCancelledByContext(t *testing.T) {
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)
	sock := filepath.Join(t.TempDir(), "never-listens.sock")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := Dial(ctx, exec, log, "unix", sock, route.ProtocolVersion{Major: 1}, DialOptions{
		MaxRetryInterval: time.Second,
		MaxRetryCount:    -1,
	})
	if err == nil {
		t.Fatal("expected Dial to return once ctx was cancelled")
	}
}

func TestDialSucceedsOnceListenerAppears(t *testing.T) {
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")

	time.AfterFunc(50*time.Millisecond, func() {
		srv, err := router.ListenServerRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
		if err != nil {
			t.Errorf("ListenServerRouter: %v", err)
			return
		}
		t.Cleanup(func() { srv.Close() })
	})

	cli, err := Dial(context.Background(), exec, log, "unix", sock, route.ProtocolVersion{Major: 1}, DialOptions{
		MaxRetryInterval: 10 * time.Millisecond,
		MaxRetryCount:    -1,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()
}
