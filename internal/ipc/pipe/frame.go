// Package pipe implements the framed message transport that every IPC
// connection (daemon-side server, SDK/CLI-side client) sends Route
// envelopes over: an 8-byte header (signature + payload size) followed by
// the payload bytes, as a plain ordered byte stream over a unix or TCP
// socket.
//
// Grounded on original_source/src/common/ipc/pipe/socket_base.cpp for the
// framing constants and the header/payload two-phase read state machine,
// and on the teacher's share/socket_conn.go for wrapping a net.Conn in the
// daemon's own connection-lifecycle idiom.
package pipe

import (
	"encoding/binary"
	"io"

	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
)

// frameSignature is the four ASCII bytes 'O','C','V','S' packed
// little-endian, matching MsgSignature in socket_base.cpp.
const frameSignature uint32 = 0x5356434F

// frameMaxSize bounds a single frame's payload, matching MsgMaxSize.
const frameMaxSize = 1 << 20

const frameHeaderLen = 8

// writeFrame writes one frame (header plus the concatenation of payloads)
// to w, matching SocketBase::send's two-phase write (header, then each
// payload fragment in turn) but coalesced into a single Write call per
// fragment boundary to preserve send's semantics under Nagle-disabled
// sockets.
func writeFrame(w io.Writer, payloads ...[]byte) error {
	var total int
	for _, p := range payloads {
		total += len(p)
	}
	if total > frameMaxSize {
		return ipcerr.New(ipcerr.EINVAL, "frame payload too large: %d bytes", total)
	}

	var header [frameHeaderLen]byte
	binary.LittleEndian.PutUint32(header[0:4], frameSignature)
	binary.LittleEndian.PutUint32(header[4:8], uint32(total))
	if _, err := w.Write(header[:]); err != nil {
		return ipcerr.WithCode(ipcerr.ENOTCONN, err)
	}

	for _, p := range payloads {
		if len(p) == 0 {
			continue
		}
		if _, err := w.Write(p); err != nil {
			return ipcerr.WithCode(ipcerr.ENOTCONN, err)
		}
	}
	return nil
}

// frameReader incrementally parses the header/payload stream from r,
// mirroring SocketBase::State's ReadPhase machine: readFrame blocks until
// exactly one full frame has been read, or returns an error (io.EOF on
// orderly close).
type frameReader struct {
	r   io.Reader
	buf []byte // reused payload buffer, grown on demand
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: r}
}

// readFrame reads one complete frame and returns its payload. The returned
// slice is only valid until the next call to readFrame (it aliases the
// reader's internal reuse buffer), matching socket_base.cpp's on-stack
// small-payload buffer for the common case of unsplittable Route frames.
func (fr *frameReader) readFrame() ([]byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ipcerr.New(ipcerr.EINVAL, "truncated frame header")
		}
		return nil, err
	}

	signature := binary.LittleEndian.Uint32(header[0:4])
	size := binary.LittleEndian.Uint32(header[4:8])
	if signature != frameSignature {
		return nil, ipcerr.New(ipcerr.EINVAL, "bad frame signature %#x", signature)
	}
	if size == 0 || size > frameMaxSize {
		return nil, ipcerr.New(ipcerr.EINVAL, "bad frame size %d", size)
	}

	if cap(fr.buf) < int(size) {
		fr.buf = make([]byte, size)
	}
	payload := fr.buf[:size]
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ipcerr.New(ipcerr.EINVAL, "truncated frame payload")
		}
		return nil, err
	}
	return payload, nil
}
