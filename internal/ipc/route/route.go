// Package route implements the Route envelope — the tagged union carried
// as every frame's payload (spec.md §3, §6): Connect, ChannelMsg, and
// ChannelEnd.
//
// The corpus carries no DSDL/Cyphal serialization library for Go (libcyphal
// and its nunavut-generated bindings are C++-only in original_source/), so
// the envelope is encoded with a small hand-rolled little-endian binary
// format mirroring the wire layout spec.md §6 specifies field-for-field;
// see DESIGN.md for why this one component is justified as stdlib-only.
package route

import (
	"encoding/binary"

	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
)

// Kind tags which Route variant a decoded envelope holds.
type Kind uint8

const (
	KindConnect Kind = iota
	KindChannelMsg
	KindChannelEnd
)

// ProtocolVersion is the handshake's major/minor pair (spec.md §4.4,
// §9 Versioning: only major/minor is carried, mismatched majors drop the
// connection).
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

// Envelope is the decoded form of one Route frame payload. Exactly one of
// the per-kind fields is meaningful, selected by Kind.
type Envelope struct {
	Kind Kind

	// KindConnect
	Version ProtocolVersion

	// KindChannelMsg / KindChannelEnd
	Tag uint64

	// KindChannelMsg
	Sequence  uint64
	ServiceID uint64
	Bytes     []byte

	// KindChannelEnd
	ErrorCode int32
}

// Connect builds a Connect envelope.
func Connect(major, minor uint8) Envelope {
	return Envelope{Kind: KindConnect, Version: ProtocolVersion{Major: major, Minor: minor}}
}

// ChannelMsg builds a ChannelMsg envelope.
func ChannelMsg(tag, sequence, serviceID uint64, bytes []byte) Envelope {
	return Envelope{Kind: KindChannelMsg, Tag: tag, Sequence: sequence, ServiceID: serviceID, Bytes: bytes}
}

// ChannelEnd builds a ChannelEnd envelope.
func ChannelEnd(tag uint64, errorCode int32) Envelope {
	return Envelope{Kind: KindChannelEnd, Tag: tag, ErrorCode: errorCode}
}

// Encode serializes e to its wire form (the bytes that become one frame's
// payload).
func Encode(e Envelope) []byte {
	switch e.Kind {
	case KindConnect:
		buf := make([]byte, 3)
		buf[0] = byte(KindConnect)
		buf[1] = e.Version.Major
		buf[2] = e.Version.Minor
		return buf

	case KindChannelMsg:
		buf := make([]byte, 1+8+8+8+4+len(e.Bytes))
		buf[0] = byte(KindChannelMsg)
		off := 1
		binary.LittleEndian.PutUint64(buf[off:], e.Tag)
		off += 8
		binary.LittleEndian.PutUint64(buf[off:], e.Sequence)
		off += 8
		binary.LittleEndian.PutUint64(buf[off:], e.ServiceID)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(e.Bytes)))
		off += 4
		copy(buf[off:], e.Bytes)
		return buf

	case KindChannelEnd:
		buf := make([]byte, 1+8+4)
		buf[0] = byte(KindChannelEnd)
		binary.LittleEndian.PutUint64(buf[1:], e.Tag)
		binary.LittleEndian.PutUint32(buf[9:], uint32(e.ErrorCode))
		return buf

	default:
		panic("route: unknown envelope kind")
	}
}

// Decode parses one frame payload into an Envelope.
func Decode(payload []byte) (Envelope, error) {
	if len(payload) < 1 {
		return Envelope{}, ipcerr.New(ipcerr.EINVAL, "empty route envelope")
	}

	switch Kind(payload[0]) {
	case KindConnect:
		if len(payload) != 3 {
			return Envelope{}, ipcerr.New(ipcerr.EINVAL, "malformed Connect envelope")
		}
		return Connect(payload[1], payload[2]), nil

	case KindChannelMsg:
		if len(payload) < 1+8+8+8+4 {
			return Envelope{}, ipcerr.New(ipcerr.EINVAL, "malformed ChannelMsg envelope")
		}
		off := 1
		tag := binary.LittleEndian.Uint64(payload[off:])
		off += 8
		seq := binary.LittleEndian.Uint64(payload[off:])
		off += 8
		serviceID := binary.LittleEndian.Uint64(payload[off:])
		off += 8
		n := binary.LittleEndian.Uint32(payload[off:])
		off += 4
		if uint32(len(payload)-off) != n {
			return Envelope{}, ipcerr.New(ipcerr.EINVAL, "malformed ChannelMsg envelope: length mismatch")
		}
		bytes := append([]byte(nil), payload[off:]...)
		return ChannelMsg(tag, seq, serviceID, bytes), nil

	case KindChannelEnd:
		if len(payload) != 1+8+4 {
			return Envelope{}, ipcerr.New(ipcerr.EINVAL, "malformed ChannelEnd envelope")
		}
		tag := binary.LittleEndian.Uint64(payload[1:])
		errorCode := int32(binary.LittleEndian.Uint32(payload[9:]))
		return ChannelEnd(tag, errorCode), nil

	default:
		return Envelope{}, ipcerr.New(ipcerr.EINVAL, "unknown route envelope kind %d", payload[0])
	}
}
