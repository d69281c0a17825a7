package pipe

import (
	"context"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/lifecycle"
)

// ClientID identifies one accepted connection for the lifetime of a
// Server, mirroring ServerPipe::ClientId in server_pipe.hpp.
type ClientID uint64

// ServerEventKind distinguishes the three server-pipe events, mirroring
// ServerPipe::Event::Var in server_pipe.hpp.
type ServerEventKind int

const (
	ServerConnected ServerEventKind = iota
	ServerMessage
	ServerDisconnected
)

// ServerEvent is delivered to a Server's handler on the owning Executor's
// goroutine, one event at a time.
type ServerEvent struct {
	Kind     ServerEventKind
	ClientID ClientID
	Payload  []byte // valid only for ServerMessage, only for the duration of the handler call
	Err      error  // set for ServerDisconnected when closed abnormally
}

// ServerHandler processes one ServerEvent. It runs on the Executor's
// goroutine and must not block.
type ServerHandler func(ServerEvent)

// Server accepts framed connections on one listener and multiplexes their
// events onto a single Executor goroutine, grounded on ServerPipe
// (server_pipe.hpp) and socket_server.cpp's accept-loop-plus-per-client-fd
// structure.
type Server struct {
	exec     *executor.Executor
	listener net.Listener
	handler  ServerHandler
	life     *lifecycle.Helper

	mu      sync.Mutex
	nextID  ClientID
	clients map[ClientID]*serverClient
}

type serverClient struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// Listen binds network/address (typically via internal/ipc/address) and
// starts accepting connections in the background. handler is invoked on
// exec's goroutine for every event across every client.
func Listen(exec *executor.Executor, network, address string, handler ServerHandler) (*Server, error) {
	lc := net.ListenConfig{Control: controlDualStack}
	l, err := lc.Listen(context.Background(), network, address)
	if err != nil {
		return nil, ipcerr.New(ipcerr.ENOTCONN, "listen %s %s: %s", network, address, err)
	}

	s := &Server{
		exec:     exec,
		listener: l,
		handler:  handler,
		clients:  make(map[ClientID]*serverClient),
	}
	s.life = lifecycle.New(s)

	go s.acceptLoop()

	return s, nil
}

// controlDualStack clears IPV6_V6ONLY on tcp6 listeners so a wildcard
// bind (internal/ipc/address's FamilyWildcard) accepts both v4-mapped and
// native v6 peers on one socket, matching socket_address.cpp's dual-stack
// wildcard bind behavior.
func controlDualStack(network, address string, c syscall.RawConn) error {
	if network != "tcp6" {
		return nil
	}
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}); err != nil {
		return err
	}
	return sockErr
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed by HandleShutdown
		}
		s.handleAccept(conn)
	}
}

func (s *Server) handleAccept(conn net.Conn) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	sc := &serverClient{conn: conn}
	s.clients[id] = sc
	s.mu.Unlock()

	s.exec.Submit(func() { s.handler(ServerEvent{Kind: ServerConnected, ClientID: id}) })

	go s.readLoop(id, sc)
}

func (s *Server) readLoop(id ClientID, sc *serverClient) {
	fr := newFrameReader(sc.conn)
	for {
		payload, err := fr.readFrame()
		if err != nil {
			s.disconnect(id, sc, err)
			return
		}
		msg := append([]byte(nil), payload...)
		s.exec.Submit(func() { s.handler(ServerEvent{Kind: ServerMessage, ClientID: id, Payload: msg}) })
	}
}

func (s *Server) disconnect(id ClientID, sc *serverClient, err error) {
	s.mu.Lock()
	if _, ok := s.clients[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, id)
	s.mu.Unlock()

	sc.conn.Close()
	s.exec.Submit(func() { s.handler(ServerEvent{Kind: ServerDisconnected, ClientID: id, Err: err}) })
}

// SendMessage writes one Route-envelope frame (as the concatenation of
// payloads) to clientID, matching ServerPipe::sendMessage's Payloads
// fan-in. Returns ENOTCONN if the client has already disconnected.
func (s *Server) SendMessage(clientID ClientID, payloads ...[]byte) error {
	s.mu.Lock()
	sc, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok {
		return ipcerr.New(ipcerr.ENOTCONN, "client %d not connected", clientID)
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return writeFrame(sc.conn, payloads...)
}

// Disconnect forcibly closes one client connection, as if its peer had
// hung up; the handler still receives exactly one ServerDisconnected.
func (s *Server) Disconnect(clientID ClientID) {
	s.mu.Lock()
	sc, ok := s.clients[clientID]
	s.mu.Unlock()
	if ok {
		s.disconnect(clientID, sc, nil)
	}
}

// Close stops accepting new connections and closes every client
// connection.
func (s *Server) Close() error {
	return s.life.Shutdown(nil)
}

// HandleShutdown implements lifecycle.Handler.
func (s *Server) HandleShutdown(completionErr error) error {
	err := s.listener.Close()
	if completionErr == nil {
		completionErr = err
	}

	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[ClientID]*serverClient)
	s.mu.Unlock()

	for id, sc := range clients {
		sc.conn.Close()
		s.exec.Submit(func(id ClientID) func() {
			return func() { s.handler(ServerEvent{Kind: ServerDisconnected, ClientID: id, Err: completionErr}) }
		}(id))
	}

	return completionErr
}
