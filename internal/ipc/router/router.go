// Package router implements channel multiplexing over one pipe
// connection (spec.md §4.4): the client side allocates outbound channels
// and routes inbound frames back to their handler by tag; the server side
// dispatches newly observed channels to a registered service factory by
// service id and routes subsequent frames to the resulting handler.
package router

import "github.com/ocvsmd-go/ocvsmd/internal/ipcerr"

// crc64WEPoly is the polynomial of CRC-64/WE, matching
// original_source/src/common/ipc/channel.hpp's use of
// libcyphal::common::CRC64WE: non-reflected input/output, init and xorout
// both all-ones. The corpus carries no Go package for this variant (the
// standard library's hash/crc64 only offers ISO and ECMA, both reflected),
// so the table-driven algorithm is reproduced here directly.
const crc64WEPoly = 0x42F0E1EBA9EA3693

var crc64WETable [256]uint64

func init() {
	for i := range crc64WETable {
		crc := uint64(i) << 56
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000000000000000 != 0 {
				crc = (crc << 1) ^ crc64WEPoly
			} else {
				crc <<= 1
			}
		}
		crc64WETable[i] = crc
	}
}

// ServiceID computes the 64-bit identifier of a service name, as carried
// on ChannelMsg.service_id and used as the server's factory-dispatch key.
// For any registered service name, service_id == CRC64_WE(name) (spec.md
// §8).
func ServiceID(name string) uint64 {
	crc := uint64(0xFFFFFFFFFFFFFFFF)
	for _, b := range []byte(name) {
		crc = (crc << 8) ^ crc64WETable[byte(crc>>56)^b]
	}
	return crc ^ 0xFFFFFFFFFFFFFFFF
}

// EventKind distinguishes the three events delivered to a ChannelHandler,
// mirroring AnyChannel's Connected/Input/Completed (channel.hpp) realized
// here at the raw-bytes router layer rather than channel.hpp's
// type-parameterized layer (that distinction is internal/ipc/channel's
// job).
type EventKind int

const (
	EventConnected EventKind = iota
	EventInput
	EventCompleted
)

// ChannelEvent is delivered to a ChannelHandler in the order
// Connected, Input*, Completed. Server-side handlers get Connected once,
// before the first Input; client-side handlers get no Connected (see
// ClientRouter.OpenChannel). Completed is delivered at most once, and only
// when the peer ends the channel or the connection drops; a channel ended
// locally with Complete receives no Completed event.
type ChannelEvent struct {
	Kind      EventKind
	Payload   []byte // valid only for EventInput
	ErrorCode ipcerr.Code
}

// ChannelHandler processes one ChannelEvent for one channel. It runs on
// the router's owning executor goroutine and must not block.
type ChannelHandler func(ChannelEvent)
