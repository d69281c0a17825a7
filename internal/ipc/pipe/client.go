package pipe

import (
	"net"
	"sync"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/lifecycle"
)

// ClientEventKind distinguishes the three client-pipe events, mirroring
// ClientPipe::Event::Var in client_pipe.hpp.
type ClientEventKind int

const (
	ClientConnected ClientEventKind = iota
	ClientMessage
	ClientDisconnected
)

// ClientEvent is delivered to a Client's handler on the owning Executor's
// goroutine, one event at a time, in wire order.
type ClientEvent struct {
	Kind    ClientEventKind
	Payload []byte // valid only for ClientMessage, only for the duration of the handler call
	Err     error  // set for ClientDisconnected when closed abnormally
}

// ClientHandler processes one ClientEvent. It runs on the Executor's
// goroutine and must not block.
type ClientHandler func(ClientEvent)

// Client is the SDK/CLI side of one framed connection to the daemon,
// grounded on ClientPipe (client_pipe.hpp) with socket_client.cpp's
// connect-then-read-loop lifecycle, adapted to a goroutine-per-connection
// idiom per internal/executor's package doc.
type Client struct {
	exec    *executor.Executor
	conn    net.Conn
	life    *lifecycle.Helper
	handler ClientHandler

	writeMu sync.Mutex
}

// Dial connects to address (already resolved to a net dial network/address
// pair, typically via internal/ipc/address.Endpoint) and starts the
// background reader. handler is invoked on exec's goroutine for every
// event, starting with exactly one ClientConnected.
func Dial(exec *executor.Executor, network, address string, handler ClientHandler) (*Client, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, ipcerr.New(ipcerr.ENOTCONN, "dial %s %s: %s", network, address, err)
	}

	c := &Client{exec: exec, conn: conn, handler: handler}
	c.life = lifecycle.New(c)

	exec.Submit(func() { handler(ClientEvent{Kind: ClientConnected}) })
	go c.readLoop()

	return c, nil
}

func (c *Client) readLoop() {
	fr := newFrameReader(c.conn)
	for {
		payload, err := fr.readFrame()
		if err != nil {
			c.life.Shutdown(err)
			return
		}
		// payload aliases fr's reuse buffer; copy before handing to the
		// executor goroutine, which may run arbitrarily later.
		msg := append([]byte(nil), payload...)
		c.exec.Submit(func() { c.handler(ClientEvent{Kind: ClientMessage, Payload: msg}) })
	}
}

// SendMessage writes one Route-envelope frame. Safe to call from any
// goroutine; concurrent calls are serialized.
func (c *Client) SendMessage(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.conn, payload)
}

// Close shuts the connection down, delivering exactly one ClientDisconnected
// to the handler if one has not already been delivered.
func (c *Client) Close() error {
	return c.life.Shutdown(nil)
}

// HandleShutdown implements lifecycle.Handler.
func (c *Client) HandleShutdown(completionErr error) error {
	err := c.conn.Close()
	if completionErr == nil {
		completionErr = err
	}
	c.exec.Submit(func() { c.handler(ClientEvent{Kind: ClientDisconnected, Err: completionErr}) })
	return completionErr
}
