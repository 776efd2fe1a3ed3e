package retrieve

import (
	"encoding/binary"
	"math"
)

// Embeddings persist as little-endian float32 BLOBs in the embedding store,
// 4 bytes per component.

// EncodeEmbedding serializes a vector for storage.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding deserializes a stored vector. Trailing bytes that do not
// form a whole component are ignored rather than read out of bounds.
func DecodeEmbedding(b []byte) []float32 {
	n := len(b) / 4
	if n == 0 {
		return nil
	}

	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
