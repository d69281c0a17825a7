package channel

import "encoding/json"

// JSONCodec is the default Codec used by internal/service and
// internal/sdk's request/response types: a direct stand-in for the
// DSDL-serialized payloads original_source/ carries over the real
// Cyphal transport, for which no Go serializer exists in the corpus (see
// internal/ipc/route's grounding note; the same reasoning applies here).
type JSONCodec[T any] struct{}

// Marshal implements Codec.
func (JSONCodec[T]) Marshal(v T) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements Codec.
func (JSONCodec[T]) Unmarshal(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}
