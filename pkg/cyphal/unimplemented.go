package cyphal

import "github.com/ocvsmd-go/ocvsmd/internal/ipcerr"

// Unimplemented is a Presentation that fails every MakeClient/MakeServer
// call with FailurePlatform/ENOSYS. It is the default collaborator
// cmd/ocvsmd wires until a real libcyphal/DSDL transport binding exists
// for Go (out of scope for this module, see DESIGN.md): the daemon's
// service FSMs, routing, and IPC fabric are fully functional against it,
// they simply have no live Cyphal bus underneath, mirroring
// original_source/src/daemon/main.cpp's own "TODO: Insert daemon code
// here" placeholder for everything past process bring-up.
type Unimplemented struct{}

func (Unimplemented) MakeClient(serviceName string, nodeID NodeID) (ServiceClient, error) {
	return nil, &MakeFailure{Kind: FailurePlatform, PlatformCode: ipcerr.ENOSYS}
}

func (Unimplemented) MakeServer(serviceName string, handler ServerRequestHandler) (Server, error) {
	return nil, &MakeFailure{Kind: FailurePlatform, PlatformCode: ipcerr.ENOSYS}
}
