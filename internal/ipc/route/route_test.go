package route

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeConnect(t *testing.T) {
	e := Connect(1, 2)
	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, e) {
		t.Fatalf("round-trip mismatch: %+v != %+v", got, e)
	}
}

func TestEncodeDecodeChannelMsg(t *testing.T) {
	e := ChannelMsg(7, 3, 0xdeadbeef, []byte("hello"))
	decoded, err := Decode(Encode(e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Tag != e.Tag || decoded.Sequence != e.Sequence || decoded.ServiceID != e.ServiceID {
		t.Fatalf("field mismatch: %+v != %+v", decoded, e)
	}
	if string(decoded.Bytes) != string(e.Bytes) {
		t.Fatalf("bytes mismatch: %q != %q", decoded.Bytes, e.Bytes)
	}
}

func TestEncodeDecodeChannelMsgEmptyBytes(t *testing.T) {
	e := ChannelMsg(1, 0, 42, nil)
	decoded, err := Decode(Encode(e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Bytes) != 0 {
		t.Fatalf("expected empty bytes, got %v", decoded.Bytes)
	}
}

func TestEncodeDecodeChannelEnd(t *testing.T) {
	e := ChannelEnd(9, -22)
	decoded, err := Decode(Encode(e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, e) {
		t.Fatalf("round-trip mismatch: %+v != %+v", decoded, e)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestDecodeTruncatedChannelMsg(t *testing.T) {
	buf := Encode(ChannelMsg(1, 1, 1, []byte("x")))
	if _, err := Decode(buf[:len(buf)-2]); err == nil {
		t.Fatalf("expected error for truncated ChannelMsg")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode([]byte{0xff}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
