package cyphal

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// FakePresentation is an in-memory Presentation for tests: it lets a test
// script exactly what each (service, node) MakeClient/Request call should
// do, without a real transport. Grounded on the teacher's own preference
// for hand-written fakes over mocking frameworks (no mock library appears
// anywhere in the corpus).
type FakePresentation struct {
	mu sync.Mutex
	// Scripts maps "service/node" to the scripted behavior for that
	// client's next Request call.
	Scripts map[string]FakeScript

	// MakeClientFailures maps "service/node" to a MakeFailure that
	// MakeClient itself should return instead of succeeding.
	MakeClientFailures map[string]*MakeFailure

	// created tracks the promise handed back by each Request call, so
	// tests can assert on cancellation after the fact.
	created map[string]*fakePromise
}

// FakeScript describes how a single Request call resolves.
type FakeScript struct {
	// Delay before the promise resolves (simulated via time.AfterFunc).
	Delay time.Duration
	// Response, if RequestFailure and PromiseFailure are both nil.
	Response []byte
	// RequestFailure makes Request itself fail synchronously.
	RequestFailure *MakeFailure
	// PromiseFailure makes the promise resolve with a failure outcome.
	PromiseFailure *PromiseFailure
}

// NewFakePresentation creates an empty FakePresentation; populate Scripts
// before use.
func NewFakePresentation() *FakePresentation {
	return &FakePresentation{
		Scripts:            make(map[string]FakeScript),
		MakeClientFailures: make(map[string]*MakeFailure),
		created:            make(map[string]*fakePromise),
	}
}

// Cancelled reports whether the promise created by the Request call for
// this service/node (if any) has since had Cancel called on it.
func (p *FakePresentation) Cancelled(serviceName string, nodeID NodeID) bool {
	p.mu.Lock()
	fp, ok := p.created[fakeKey(serviceName, nodeID)]
	p.mu.Unlock()
	if !ok {
		return false
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.cancelled
}

func fakeKey(serviceName string, nodeID NodeID) string {
	return serviceName + "/" + strconv.Itoa(int(nodeID))
}

// MakeClient implements Presentation.
func (p *FakePresentation) MakeClient(serviceName string, nodeID NodeID) (ServiceClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := fakeKey(serviceName, nodeID)
	if f, ok := p.MakeClientFailures[key]; ok {
		return nil, f
	}
	return &fakeServiceClient{pres: p, service: serviceName, node: nodeID}, nil
}

// MakeServer implements Presentation. Fakes used by internal/service's
// tests never receive inbound Cyphal requests, so this returns a no-op
// server.
func (p *FakePresentation) MakeServer(serviceName string, handler ServerRequestHandler) (Server, error) {
	return fakeServer{}, nil
}

type fakeServer struct{}

func (fakeServer) Close() error { return nil }

type fakeServiceClient struct {
	pres    *FakePresentation
	service string
	node    NodeID
}

func (c *fakeServiceClient) Request(ctx context.Context, timeout time.Duration, payload []byte) (ResponsePromise, error) {
	c.pres.mu.Lock()
	script, ok := c.pres.Scripts[fakeKey(c.service, c.node)]
	c.pres.mu.Unlock()
	if !ok {
		script = FakeScript{}
	}

	if script.RequestFailure != nil {
		return nil, script.RequestFailure
	}

	promise := &fakePromise{script: script}
	c.pres.mu.Lock()
	c.pres.created[fakeKey(c.service, c.node)] = promise
	c.pres.mu.Unlock()
	return promise, nil
}

func (c *fakeServiceClient) Close() error { return nil }

type fakePromise struct {
	mu        sync.Mutex
	script    FakeScript
	cancelled bool
	timer     *time.Timer
}

func (p *fakePromise) SetCallback(cb func(PromiseOutcome)) {
	fire := func() {
		p.mu.Lock()
		cancelled := p.cancelled
		p.mu.Unlock()
		if cancelled {
			return
		}
		if p.script.PromiseFailure != nil {
			cb(PromiseOutcome{Failure: p.script.PromiseFailure})
			return
		}
		cb(PromiseOutcome{Response: p.script.Response})
	}

	if p.script.Delay <= 0 {
		fire()
		return
	}
	p.mu.Lock()
	p.timer = time.AfterFunc(p.script.Delay, fire)
	p.mu.Unlock()
}

func (p *fakePromise) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
}
