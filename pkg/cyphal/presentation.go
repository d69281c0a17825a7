// Package cyphal declares the Cyphal presentation-layer collaborator the
// daemon's service FSMs consume (spec.md §1: "the core consumes a
// Presentation capability ... it does not reimplement them") and the
// failure taxonomy translation spec.md §4.6 specifies for turning
// presentation-layer failures into the IPC error-code taxonomy.
//
// Grounded on original_source/include/ocvsmd/sdk/execution.hpp and
// src/daemon/engine/svc/node/exec_cmd_service.cpp's failureToErrorCode
// call sites, which this package's FailureToCode mirrors exactly.
package cyphal

import (
	"context"
	"time"

	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
)

// NodeID is a Cyphal node identifier, spec.md's node_id.
type NodeID uint16

// Presentation is the external collaborator used to issue Cyphal service
// requests and receive response promises. The daemon never constructs
// nodes/transports itself; it is handed a Presentation at startup (see
// SPEC_FULL.md §4).
type Presentation interface {
	// MakeClient manufactures a service client bound to serviceName and
	// targeting nodeID. The returned error, if non-nil, is always a
	// *MakeFailure.
	MakeClient(serviceName string, nodeID NodeID) (ServiceClient, error)

	// MakeServer manufactures a server accepting requests for
	// serviceName from any node. No package in this module calls it;
	// pkg/fileserver and pkg/pnp keep only in-memory state.
	MakeServer(serviceName string, handler ServerRequestHandler) (Server, error)
}

// ServiceClient issues requests to one remote node for one service.
type ServiceClient interface {
	// Request issues one request with the given per-request timeout.
	// The returned error, if non-nil, is always a *MakeFailure (the same
	// taxonomy governs request-issue failures as client-creation
	// failures, per exec_cmd_service.cpp).
	Request(ctx context.Context, timeout time.Duration, payload []byte) (ResponsePromise, error)

	// Close releases the client, cancelling any promises it has
	// outstanding.
	Close() error
}

// ResponsePromise is a single in-flight request's eventual outcome.
type ResponsePromise interface {
	// SetCallback registers the callback invoked exactly once when the
	// promise resolves, on the presentation layer's own delivery
	// goroutine (which callers must re-submit onto their owning
	// executor, matching the Cyphal presentation's C++ behavior of
	// calling back from the executor thread it shares with the daemon).
	SetCallback(func(PromiseOutcome))

	// Cancel releases the promise early, as happens when its owning FSM
	// is destroyed (spec.md §5 cancellation).
	Cancel()
}

// PromiseOutcome is the resolved value of a ResponsePromise: exactly one
// of Response or Failure is set.
type PromiseOutcome struct {
	Response []byte
	Failure  *PromiseFailure
}

// ServerRequestHandler processes one inbound Cyphal request and returns
// the response payload (or an error to be mapped to a failure response).
type ServerRequestHandler func(ctx context.Context, from NodeID, payload []byte) ([]byte, error)

// Server is an inbound Cyphal service endpoint accepting requests from any
// node for one service.
type Server interface {
	Close() error
}

// MakeFailureKind enumerates why client creation or request issuance
// failed, mirroring libcyphal::presentation::Presentation::MakeFailure's
// variant members.
type MakeFailureKind int

const (
	FailureMemory MakeFailureKind = iota
	FailureArgument
	FailureAnonymous
	FailureAlreadyExists
	FailurePlatform
	FailureCapacity
)

// MakeFailure is returned by MakeClient/Request on failure.
type MakeFailure struct {
	Kind MakeFailureKind
	// PlatformCode carries the embedded error for FailurePlatform; for
	// every other Kind it is unused.
	PlatformCode ipcerr.Code
}

func (f *MakeFailure) Error() string {
	return "cyphal: make/request failed (" + f.Kind.String() + ")"
}

func (k MakeFailureKind) String() string {
	switch k {
	case FailureMemory:
		return "memory"
	case FailureArgument:
		return "argument"
	case FailureAnonymous:
		return "anonymous"
	case FailureAlreadyExists:
		return "already-exists"
	case FailurePlatform:
		return "platform"
	case FailureCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// PromiseFailureKind enumerates why a ResponsePromise resolved with
// failure, mirroring libcyphal::presentation::ResponsePromiseFailure's
// variant members.
type PromiseFailureKind int

const (
	PromiseFailureTimeout PromiseFailureKind = iota
	PromiseFailureTooManyPending
	PromiseFailureOther
)

// PromiseFailure is carried in PromiseOutcome.Failure.
type PromiseFailure struct {
	Kind PromiseFailureKind
}

// FailureToCode translates a *MakeFailure to the IPC completion-code
// taxonomy, exactly as exec_cmd_service.cpp's failureToErrorCode does:
// memory->ENOMEM, argument/anonymous->EINVAL, already-exists->EEXIST,
// platform->its embedded code, capacity->ENOMEM.
func FailureToCode(f *MakeFailure) ipcerr.Code {
	switch f.Kind {
	case FailureMemory, FailureCapacity:
		return ipcerr.ENOMEM
	case FailureArgument, FailureAnonymous:
		return ipcerr.EINVAL
	case FailureAlreadyExists:
		return ipcerr.EEXIST
	case FailurePlatform:
		return f.PlatformCode
	default:
		return ipcerr.EINVAL
	}
}

// PromiseFailureToCode translates a *PromiseFailure: timeout->ETIMEDOUT,
// too-many-pending->EBUSY, other->EINVAL (the "as above" fallback
// exec_cmd_service.cpp's comment refers to).
func PromiseFailureToCode(f *PromiseFailure) ipcerr.Code {
	switch f.Kind {
	case PromiseFailureTimeout:
		return ipcerr.ETIMEDOUT
	case PromiseFailureTooManyPending:
		return ipcerr.EBUSY
	default:
		return ipcerr.EINVAL
	}
}
