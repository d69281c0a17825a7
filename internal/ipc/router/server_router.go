package router

import (
	"sort"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/pipe"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
)

// ServiceFactory manufactures the handler for one newly observed inbound
// channel. ch is the handle the handler uses to stream Input events back;
// the returned ChannelHandler receives this channel's EventConnected,
// EventInput (one per subsequent ChannelMsg, starting with the frame that
// triggered dispatch), and EventCompleted.
type ServiceFactory func(ch *ServerChannel) ChannelHandler

// ServerRouter is the daemon-side multiplexer of spec.md §4.4: it owns
// one pipe.Server, dispatches newly observed inbound channels to a
// registered ServiceFactory keyed by service id, and routes subsequent
// frames to the resulting handler.
//
// Grounded on ServerRouter (server_router.hpp) for the responsibility
// split from ServerPipe, and on spec.md §4.4's inbound-channel-lifecycle
// algorithm for the exact dispatch rules (unknown service id -> ENOSYS,
// duplicate registration -> EEXIST).
type ServerRouter struct {
	exec    *executor.Executor
	server  *pipe.Server
	log     *ipclog.Logger
	version route.ProtocolVersion

	factories map[uint64]ServiceFactory
	conns     map[pipe.ClientID]*serverConn
}

type serverConn struct {
	gotConnect bool
	channels   map[uint64]*serverChannelState
}

type serverChannelState struct {
	clientID  pipe.ClientID
	tag       uint64
	serviceID uint64
	seq       uint64
	done      bool
	handler   ChannelHandler
}

// ListenServerRouter binds network/address and starts accepting
// connections. Services must be registered via RegisterService before
// any client can open a channel for them; registering after clients have
// connected is fine (new channels look the factory up at dispatch time).
func ListenServerRouter(exec *executor.Executor, log *ipclog.Logger, network, address string, version route.ProtocolVersion) (*ServerRouter, error) {
	r := &ServerRouter{
		exec:      exec,
		log:       log,
		version:   version,
		factories: make(map[uint64]ServiceFactory),
		conns:     make(map[pipe.ClientID]*serverConn),
	}

	server, err := pipe.Listen(exec, network, address, r.onPipeEvent)
	if err != nil {
		return nil, err
	}
	r.server = server
	return r, nil
}

// RegisterService binds serviceName's CRC-64 id to factory. Returns
// EEXIST if the id is already registered (spec.md §4.4's "collisions are
// ... programming errors" rule), including the case of a genuine CRC
// collision between two distinct names.
func (r *ServerRouter) RegisterService(serviceName string, factory ServiceFactory) error {
	id := ServiceID(serviceName)
	if _, exists := r.factories[id]; exists {
		return ipcerr.New(ipcerr.EEXIST, "service %q (id %#x) already registered", serviceName, id)
	}
	r.factories[id] = factory
	return nil
}

func (r *ServerRouter) onPipeEvent(ev pipe.ServerEvent) {
	switch ev.Kind {
	case pipe.ServerConnected:
		r.conns[ev.ClientID] = &serverConn{channels: make(map[uint64]*serverChannelState)}

	case pipe.ServerMessage:
		r.handleFrame(ev.ClientID, ev.Payload)

	case pipe.ServerDisconnected:
		r.dropConnection(ev.ClientID)
	}
}

func (r *ServerRouter) handleFrame(clientID pipe.ClientID, payload []byte) {
	conn, ok := r.conns[clientID]
	if !ok {
		return
	}

	env, err := route.Decode(payload)
	if err != nil {
		r.log.Warnf("dropping malformed frame from client %d: %s", clientID, err)
		return
	}

	switch env.Kind {
	case route.KindConnect:
		if env.Version.Major != r.version.Major {
			r.log.Warnf("client %d protocol major version %d != %d, disconnecting", clientID, env.Version.Major, r.version.Major)
			r.server.Disconnect(clientID)
			return
		}
		conn.gotConnect = true
		if err := r.server.SendMessage(clientID, route.Encode(route.Connect(r.version.Major, r.version.Minor))); err != nil {
			r.log.Warnf("failed to reply handshake to client %d: %s", clientID, err)
		}

	case route.KindChannelMsg:
		if !conn.gotConnect {
			r.log.Warnf("dropping ChannelMsg from client %d before handshake", clientID)
			return
		}
		r.handleChannelMsg(clientID, conn, env)

	case route.KindChannelEnd:
		if !conn.gotConnect {
			return
		}
		ch, ok := conn.channels[env.Tag]
		if !ok {
			return
		}
		delete(conn.channels, env.Tag)
		ch.done = true
		ch.handler(ChannelEvent{Kind: EventCompleted, ErrorCode: ipcerr.Code(env.ErrorCode)})
	}
}

func (r *ServerRouter) handleChannelMsg(clientID pipe.ClientID, conn *serverConn, env route.Envelope) {
	if ch, ok := conn.channels[env.Tag]; ok {
		if ch.done {
			r.log.Debugf("dropping ChannelMsg for completed tag %d", env.Tag)
			return
		}
		ch.handler(ChannelEvent{Kind: EventInput, Payload: env.Bytes})
		return
	}

	factory, ok := r.factories[env.ServiceID]
	if !ok {
		r.log.Warnf("unknown service id %#x on client %d, replying ENOSYS", env.ServiceID, clientID)
		r.server.SendMessage(clientID, route.Encode(route.ChannelEnd(env.Tag, int32(ipcerr.ENOSYS))))
		return
	}

	state := &serverChannelState{clientID: clientID, tag: env.Tag, serviceID: env.ServiceID}
	conn.channels[env.Tag] = state

	sch := &ServerChannel{router: r, state: state}
	state.handler = factory(sch)

	state.handler(ChannelEvent{Kind: EventConnected})
	state.handler(ChannelEvent{Kind: EventInput, Payload: env.Bytes})
}

func (r *ServerRouter) dropConnection(clientID pipe.ClientID) {
	conn, ok := r.conns[clientID]
	if !ok {
		return
	}
	delete(r.conns, clientID)

	tags := make([]uint64, 0, len(conn.channels))
	for tag := range conn.channels {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	for _, tag := range tags {
		ch := conn.channels[tag]
		ch.done = true
		ch.handler(ChannelEvent{Kind: EventCompleted, ErrorCode: ipcerr.ESHUTDOWN})
	}
}

func (r *ServerRouter) sendOnChannel(ch *serverChannelState, bytes []byte) error {
	if ch.done {
		return ipcerr.New(ipcerr.ESHUTDOWN, "channel %d already completed", ch.tag)
	}
	seq := ch.seq
	ch.seq++
	return r.server.SendMessage(ch.clientID, route.Encode(route.ChannelMsg(ch.tag, seq, ch.serviceID, bytes)))
}

func (r *ServerRouter) completeChannel(ch *serverChannelState, code ipcerr.Code) error {
	if ch.done {
		return nil
	}
	ch.done = true
	if conn, ok := r.conns[ch.clientID]; ok {
		delete(conn.channels, ch.tag)
	}
	return r.server.SendMessage(ch.clientID, route.Encode(route.ChannelEnd(ch.tag, int32(code))))
}

// Close stops accepting connections and closes every client.
func (r *ServerRouter) Close() error {
	return r.server.Close()
}

// ServerChannel is the inbound channel handle a ServiceFactory uses to
// stream responses back and complete the channel (spec.md §4.6).
type ServerChannel struct {
	router *ServerRouter
	state  *serverChannelState
}

// Send streams one response message on this channel.
func (c *ServerChannel) Send(bytes []byte) error {
	return c.router.sendOnChannel(c.state, bytes)
}

// Complete ends this channel with the given completion code. A no-op if
// already completed (locally or by the peer).
func (c *ServerChannel) Complete(code ipcerr.Code) error {
	return c.router.completeChannel(c.state, code)
}
