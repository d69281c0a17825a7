// Package channel provides the thin type-parameterized veneer of
// spec.md §4.5 over internal/ipc/router's raw-bytes channels: serialize
// outbound, deserialize inbound, expose Connected/Input/Completed events
// of the caller's own request/response types.
//
// Grounded on Channel<Input,Output> (channel.hpp): the same three
// responsibilities (send/complete/subscribe), generalized here with Go
// generics in place of C++ template parameters.
package channel

import (
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
)

// Codec marshals/unmarshals one service's request/response payloads. The
// corpus carries no Go DSDL/Cyphal serialization library (see
// internal/ipc/route's grounding note), so callers supply their own
// codec; internal/service and internal/sdk's adapters use
// encoding/json-based codecs for the payload shapes SPEC_FULL.md defines.
type Codec[T any] interface {
	Marshal(T) ([]byte, error)
	Unmarshal([]byte) (T, error)
}

// EventKind mirrors router.EventKind at the typed layer.
type EventKind = router.EventKind

const (
	Connected = router.EventConnected
	Input     = router.EventInput
	Completed = router.EventCompleted
)

// Event is delivered to a typed channel's handler. Value holds the
// decoded Input payload (only meaningful when Kind == Input, and only for
// the duration of the handler call); DecodeErr is set instead of Value
// when deserialization of an inbound frame failed (spec.md §4.5: a
// decoded Input or a deserialization-failure EINVAL).
type Event[In any] struct {
	Kind      EventKind
	Value     In
	DecodeErr error
	ErrorCode ipcerr.Code
}

// Handler processes one typed Event.
type Handler[In any] func(Event[In])

// ClientChannel is the SDK-side typed veneer over router.ClientChannel.
type ClientChannel[In, Out any] struct {
	raw   *router.ClientChannel
	codec Codec[Out]
}

// OpenClientChannel opens an outbound channel for serviceName and wires
// decode of inbound frames as In via inCodec, forwarding decoded events to
// handler.
func OpenClientChannel[In, Out any](
	r *router.ClientRouter,
	serviceName string,
	inCodec Codec[In],
	outCodec Codec[Out],
	handler Handler[In],
) *ClientChannel[In, Out] {
	raw := r.OpenChannel(serviceName, func(ev router.ChannelEvent) {
		handler(adaptEvent(ev, inCodec))
	})
	return &ClientChannel[In, Out]{raw: raw, codec: outCodec}
}

// Send marshals output per the output Codec and sends it, obeying the
// stack/heap serialization-buffer size policy only in spirit: Go slices
// are always heap-allocated, so this layer's job is purely the
// marshal-then-forward step (spec.md §4.5, §9's stack/heap distinction is
// realized at the transport layer in C++ and has no Go analogue worth
// reproducing).
func (c *ClientChannel[In, Out]) Send(out Out) error {
	bytes, err := c.codec.Marshal(out)
	if err != nil {
		return ipcerr.New(ipcerr.EINVAL, "marshal failed: %s", err)
	}
	return c.raw.Send(bytes)
}

// Complete explicitly ends the channel.
func (c *ClientChannel[In, Out]) Complete(code ipcerr.Code) error {
	return c.raw.Complete(code)
}

// ServerChannel is the daemon-side typed veneer over router.ServerChannel.
type ServerChannel[In, Out any] struct {
	raw   *router.ServerChannel
	codec Codec[Out]
}

// NewServerChannel wraps an already-dispatched router.ServerChannel (as
// handed to a router.ServiceFactory) with a typed veneer, forwarding
// decoded inbound events to handler.
func NewServerChannel[In, Out any](
	raw *router.ServerChannel,
	inCodec Codec[In],
	outCodec Codec[Out],
	handler Handler[In],
) (*ServerChannel[In, Out], router.ChannelHandler) {
	sc := &ServerChannel[In, Out]{raw: raw, codec: outCodec}
	return sc, func(ev router.ChannelEvent) {
		handler(adaptEvent(ev, inCodec))
	}
}

// Send marshals output and streams it as a response Input on this
// channel.
func (c *ServerChannel[In, Out]) Send(out Out) error {
	bytes, err := c.codec.Marshal(out)
	if err != nil {
		return ipcerr.New(ipcerr.EINVAL, "marshal failed: %s", err)
	}
	return c.raw.Send(bytes)
}

// Complete ends the channel with the given completion code.
func (c *ServerChannel[In, Out]) Complete(code ipcerr.Code) error {
	return c.raw.Complete(code)
}

func adaptEvent[In any](ev router.ChannelEvent, codec Codec[In]) Event[In] {
	out := Event[In]{Kind: ev.Kind, ErrorCode: ev.ErrorCode}
	if ev.Kind == router.EventInput {
		value, err := codec.Unmarshal(ev.Payload)
		if err != nil {
			out.DecodeErr = ipcerr.New(ipcerr.EINVAL, "unmarshal failed: %s", err)
		} else {
			out.Value = value
		}
	}
	return out
}
