package pipe

import (
	"bytes"
	"io"
	"testing"

	"github.com/prep/socketpair"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("hello"), []byte(" world")); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	fr := newFrameReader(&buf)
	payload, err := fr.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if string(payload) != "hello world" {
		t.Fatalf("unexpected payload: %q", payload)
	}
}

func TestReadFrameBadSignature(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0, 5, 0, 0, 0})
	buf.WriteString("hello")

	if _, err := newFrameReader(&buf).readFrame(); err == nil {
		t.Fatalf("expected error for bad signature")
	}
}

func TestReadFrameZeroSize(t *testing.T) {
	var buf bytes.Buffer
	writeFrame(&buf, nil)
	// writeFrame of an empty payload list still emits a header claiming 0
	// bytes, which socket_base.cpp rejects as invalid.
	if _, err := newFrameReader(&buf).readFrame(); err == nil {
		t.Fatalf("expected error for zero-size frame")
	}
}

func TestReadFrameTruncatedHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x4F, 0x43, 0x56})
	if _, err := newFrameReader(&buf).readFrame(); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}

// TestFrameOverRealSocketpair drives the framing state machine across a
// real socketpair(2) connection, exercising short reads the way two
// independent write() calls (header, then payload) produce on a real
// socket, which bytes.Buffer cannot.
func TestFrameOverRealSocketpair(t *testing.T) {
	a, b, err := socketpair.New("unix")
	if err != nil {
		t.Fatalf("socketpair.New: %v", err)
	}
	defer a.Close()
	defer b.Close()

	msgs := [][]byte{
		[]byte("small"),
		make([]byte, 4096), // forces the multi-read payload path
		[]byte(""),
	}

	go func() {
		for _, m := range msgs {
			if len(m) == 0 {
				continue
			}
			if err := writeFrame(a, m); err != nil {
				return
			}
		}
		a.Close()
	}()

	fr := newFrameReader(b)
	var got [][]byte
	for {
		payload, err := fr.readFrame()
		if err != nil {
			if err != io.EOF {
				t.Fatalf("readFrame: %v", err)
			}
			break
		}
		got = append(got, append([]byte(nil), payload...))
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	if string(got[0]) != "small" {
		t.Fatalf("unexpected first frame: %q", got[0])
	}
	if len(got[1]) != 4096 {
		t.Fatalf("unexpected second frame length: %d", len(got[1]))
	}
}
