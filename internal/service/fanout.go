package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
)

// fanOut is the shared dispatch/complete skeleton common to every service
// FSM that fans one request out to N Cyphal nodes and streams a partial
// result per resolution (spec.md §4.6's "canonical FSM", reused here by
// ExecCmdService and RegisterService per SPEC_FULL.md §4.8's "same FSM
// skeleton as Execute-Command").
//
// The initial MakeClient/Request dispatch for the unique node-ids in one
// request runs concurrently via golang.org/x/sync/errgroup (one goroutine
// per node), since that work may block on presentation-layer I/O; the
// group's goroutines never touch fsm-owned state directly; each one hands
// its successfully created promise back to the owning executor via Submit
// before registering its resolution callback, and errgroup.Wait's result
// is itself delivered back onto the executor. This keeps the
// single-ownership invariant (spec.md §5) intact across the one place this
// module deliberately spawns goroutines that are not I/O reader loops.
type fanOut struct {
	id           string
	exec         *executor.Executor
	presentation cyphal.Presentation
	log          *ipclog.Logger
	complete     func(code ipcerr.Code)
	pending      map[cyphal.NodeID]cyphal.ResponsePromise

	serviceName  string
	buildPayload func(nodeID cyphal.NodeID) ([]byte, error)
	onResult     func(nodeID cyphal.NodeID, payload []byte)
}

// newFanOut constructs a fanOut; complete is invoked exactly once, either
// when every dispatched node has resolved or when dispatch itself fails
// for any node.
func newFanOut(exec *executor.Executor, presentation cyphal.Presentation, log *ipclog.Logger, serviceName string, complete func(code ipcerr.Code)) *fanOut {
	id := uuid.NewString()
	return &fanOut{
		id:           id,
		exec:         exec,
		presentation: presentation,
		log:          log.Fork("fanout=%s", id),
		complete:     complete,
		pending:      make(map[cyphal.NodeID]cyphal.ResponsePromise),
		serviceName:  serviceName,
	}
}

// start dedups nodeIDs and dispatches one request per unique node
// concurrently. Must be called from the owning executor goroutine; the
// concurrent dispatch itself happens off that goroutine (see type doc).
func (f *fanOut) start(nodeIDs []cyphal.NodeID, timeout time.Duration) {
	unique := make(map[cyphal.NodeID]struct{})
	for _, id := range nodeIDs {
		unique[id] = struct{}{}
	}
	if len(unique) == 0 {
		f.complete(ipcerr.OK)
		return
	}

	ids := make([]cyphal.NodeID, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}

	go func() {
		g, ctx := errgroup.WithContext(context.Background())
		for _, nodeID := range ids {
			nodeID := nodeID
			g.Go(func() error { return f.dispatchOne(ctx, nodeID, timeout) })
		}
		if err := g.Wait(); err != nil {
			f.exec.Submit(func() {
				f.cancelAll()
				f.complete(ipcerr.CodeOf(err))
			})
		}
	}()
}

// dispatchOne runs on one of start's errgroup goroutines: it creates the
// client and issues the request (presentation-layer work, not fsm state),
// then hands the resulting promise back to the executor to register.
func (f *fanOut) dispatchOne(ctx context.Context, nodeID cyphal.NodeID, timeout time.Duration) error {
	client, err := f.presentation.MakeClient(f.serviceName, nodeID)
	if err != nil {
		mf := err.(*cyphal.MakeFailure)
		f.log.Errorf("failed to make client for node %d: %s", nodeID, mf)
		return ipcerr.WithCode(cyphal.FailureToCode(mf), err)
	}

	payload, err := f.buildPayload(nodeID)
	if err != nil {
		return ipcerr.WithCode(ipcerr.EINVAL, err)
	}

	promise, err := client.Request(ctx, timeout, payload)
	if err != nil {
		mf := err.(*cyphal.MakeFailure)
		f.log.Errorf("failed to send request to node %d: %s", nodeID, mf)
		return ipcerr.WithCode(cyphal.FailureToCode(mf), err)
	}

	f.exec.Submit(func() {
		f.pending[nodeID] = promise
		promise.SetCallback(func(outcome cyphal.PromiseOutcome) {
			f.exec.Submit(func() { f.onPromiseResolved(nodeID, outcome) })
		})
	})
	return nil
}

func (f *fanOut) onPromiseResolved(nodeID cyphal.NodeID, outcome cyphal.PromiseOutcome) {
	if _, stillPending := f.pending[nodeID]; !stillPending {
		return // fsm already completed and released; ignore stale callback
	}
	if outcome.Failure != nil {
		f.log.Warnf("promise failure for node %d: %s", nodeID, cyphal.PromiseFailureToCode(outcome.Failure))
	} else {
		f.onResult(nodeID, outcome.Response)
	}
	delete(f.pending, nodeID)
	if len(f.pending) == 0 {
		f.complete(ipcerr.OK)
	}
}

// cancelAll cancels every still-outstanding promise, used when the FSM's
// owning channel is completed by the client before every node resolved
// (spec.md §5 cancellation).
func (f *fanOut) cancelAll() {
	for nodeID, p := range f.pending {
		p.Cancel()
		delete(f.pending, nodeID)
	}
}
