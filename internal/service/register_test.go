package service

import (
	"path/filepath"
	"testing"

	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
)

func TestRegisterListStreamsNamesPerNode(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)

	pres := cyphal.NewFakePresentation()
	pres.Scripts["ocvsmd.svc.node.register_list/1"] = cyphal.FakeScript{
		Response: mustMarshalRegisterListResponse(t, []string{"uavcan.node.id", "uavcan.udp.iface"}),
	}

	svc := NewRegisterService(exec, pres, log)
	srv, err := router.ListenServerRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()
	if err := svc.RegisterWith(srv); err != nil {
		t.Fatalf("RegisterWith: %v", err)
	}

	cli, err := router.DialClientRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("DialClientRouter: %v", err)
	}
	defer cli.Close()

	events := make(chan router.ChannelEvent, 8)
	ch := cli.OpenChannel(RegisterListServiceName, func(ev router.ChannelEvent) { events <- ev })

	payload, _ := channel.JSONCodec[RegisterListRequest]{}.Marshal(RegisterListRequest{NodeIDs: []cyphal.NodeID{1}, TimeoutMillis: 1000})
	ch.Send(payload)

	var names []string
	for {
		ev := waitForEvent(t, events)
		if ev.Kind == router.EventCompleted {
			if ev.ErrorCode != ipcerr.OK {
				t.Fatalf("unexpected completion: %v", ev.ErrorCode)
			}
			break
		}
		entry, err := channel.JSONCodec[RegisterListEntry]{}.Unmarshal(ev.Payload)
		if err != nil {
			t.Fatalf("unmarshal entry: %v", err)
		}
		if entry.NodeID != 1 {
			t.Fatalf("unexpected node id: %d", entry.NodeID)
		}
		names = append(names, entry.Name)
	}
	if len(names) != 2 || names[0] != "uavcan.node.id" || names[1] != "uavcan.udp.iface" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func mustMarshalRegisterListResponse(t *testing.T, names []string) []byte {
	t.Helper()
	b, err := channel.JSONCodec[registerListResponsePayload]{}.Marshal(registerListResponsePayload{Names: names})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
