package router

import (
	"sort"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/pipe"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
)

// ClientRouter is the SDK/CLI-side multiplexer of spec.md §4.4: it owns
// one pipe.Client, allocates outbound channel tags, and routes inbound
// frames to the channel that opened them.
//
// Grounded on ClientRouter (client_router.hpp) for the responsibility
// split from ClientPipe, and on spec.md §4.4's outbound-channel-lifecycle
// algorithm for the exact state machine.
type ClientRouter struct {
	exec    *executor.Executor
	client  *pipe.Client
	log     *ipclog.Logger
	version route.ProtocolVersion

	peerConnected bool
	nextTag       uint64
	channels      map[uint64]*clientChannel
}

type clientChannel struct {
	tag       uint64
	serviceID uint64
	seq       uint64
	opened    bool // first Send has been issued
	done      bool
	handler   ChannelHandler
}

// DialClientRouter connects to address over network (see
// internal/ipc/address for producing these from an Endpoint) and starts
// the handshake: a Connect envelope is sent as soon as the transport
// connects.
func DialClientRouter(exec *executor.Executor, log *ipclog.Logger, network, address string, version route.ProtocolVersion) (*ClientRouter, error) {
	r := &ClientRouter{
		exec:     exec,
		log:      log,
		version:  version,
		channels: make(map[uint64]*clientChannel),
	}

	client, err := pipe.Dial(exec, network, address, r.onPipeEvent)
	if err != nil {
		return nil, err
	}
	r.client = client
	return r, nil
}

func (r *ClientRouter) onPipeEvent(ev pipe.ClientEvent) {
	switch ev.Kind {
	case pipe.ClientConnected:
		if err := r.client.SendMessage(route.Encode(route.Connect(r.version.Major, r.version.Minor))); err != nil {
			r.log.Warnf("failed to send handshake: %s", err)
		}

	case pipe.ClientMessage:
		r.handleFrame(ev.Payload)

	case pipe.ClientDisconnected:
		r.completeAll(ipcerr.ESHUTDOWN)
	}
}

func (r *ClientRouter) handleFrame(payload []byte) {
	env, err := route.Decode(payload)
	if err != nil {
		r.log.Warnf("dropping malformed frame: %s", err)
		return
	}

	switch env.Kind {
	case route.KindConnect:
		if env.Version.Major != r.version.Major {
			r.log.Warnf("peer protocol major version %d != %d, disconnecting", env.Version.Major, r.version.Major)
			r.client.Close()
			return
		}
		r.peerConnected = true

	case route.KindChannelMsg:
		if !r.peerConnected {
			r.log.Warnf("dropping ChannelMsg before handshake")
			return
		}
		ch, ok := r.channels[env.Tag]
		if !ok || ch.done {
			r.log.Debugf("dropping ChannelMsg for unknown/completed tag %d", env.Tag)
			return
		}
		ch.handler(ChannelEvent{Kind: EventInput, Payload: env.Bytes})

	case route.KindChannelEnd:
		if !r.peerConnected {
			return
		}
		ch, ok := r.channels[env.Tag]
		if !ok {
			return
		}
		delete(r.channels, env.Tag)
		ch.done = true
		ch.handler(ChannelEvent{Kind: EventCompleted, ErrorCode: ipcerr.Code(env.ErrorCode)})
	}
}

// completeAll delivers Completed{code} to every live channel, in
// increasing tag order (spec.md §4.4 rule 4), then clears the table.
func (r *ClientRouter) completeAll(code ipcerr.Code) {
	tags := make([]uint64, 0, len(r.channels))
	for tag := range r.channels {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	for _, tag := range tags {
		ch := r.channels[tag]
		delete(r.channels, tag)
		ch.done = true
		ch.handler(ChannelEvent{Kind: EventCompleted, ErrorCode: code})
	}
}

// OpenChannel allocates a new outbound channel bound to serviceName.
// handler receives EventInput/EventCompleted for this channel; no
// EventConnected is delivered client-side (the client itself initiates the
// channel, so there is nothing to wait for before it may Send).
func (r *ClientRouter) OpenChannel(serviceName string, handler ChannelHandler) *ClientChannel {
	tag := r.nextTag
	r.nextTag++

	ch := &clientChannel{tag: tag, serviceID: ServiceID(serviceName), handler: handler}
	r.channels[tag] = ch

	return &ClientChannel{router: r, state: ch}
}

func (r *ClientRouter) sendOnChannel(ch *clientChannel, bytes []byte) error {
	if ch.done {
		return ipcerr.New(ipcerr.ESHUTDOWN, "channel %d already completed", ch.tag)
	}
	seq := ch.seq
	ch.seq++
	ch.opened = true
	return r.client.SendMessage(route.Encode(route.ChannelMsg(ch.tag, seq, ch.serviceID, bytes)))
}

func (r *ClientRouter) completeChannel(ch *clientChannel, code ipcerr.Code) error {
	if ch.done {
		return nil
	}
	ch.done = true
	delete(r.channels, ch.tag)
	return r.client.SendMessage(route.Encode(route.ChannelEnd(ch.tag, int32(code))))
}

// Close shuts down the underlying pipe connection, which completes every
// live channel with ESHUTDOWN.
func (r *ClientRouter) Close() error {
	return r.client.Close()
}

// ClientChannel is the outbound channel handle returned by OpenChannel.
type ClientChannel struct {
	router *ClientRouter
	state  *clientChannel
}

// Send serializes and sends one outbound message on this channel,
// implicitly opening it on the first call (spec.md §4.4 rule 2).
func (c *ClientChannel) Send(bytes []byte) error {
	return c.router.sendOnChannel(c.state, bytes)
}

// Complete explicitly ends this channel with the given success/error
// code. A no-op if the channel has already completed (locally or by the
// peer), matching spec.md §4.4 rule 5.
func (c *ClientChannel) Complete(code ipcerr.Code) error {
	return c.router.completeChannel(c.state, code)
}
