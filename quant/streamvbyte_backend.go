package quant

import "github.com/mhr3/streamvbyte"

// CompressBackend selects the wire encoding used by CompressWith /
// DecompressWith. BackendGolombRice is the default entropy coder used
// everywhere else in this package; BackendStreamVByte is a supplemental
// backend for partitions whose sparsity doesn't suit a fixed Rice parameter K.
type CompressBackend int

const (
	BackendGolombRice CompressBackend = iota
	BackendStreamVByte
)

// CompressWith compresses stream with the selected backend. The
// BackendStreamVByte path reuses the 32-bit position/sign words produced by
// the threshold and adaptive codecs unchanged (StreamVByte is itself a
// general 32-bit integer codec, so no repacking is required before framing).
func CompressWith(stream ThreshStream, backend CompressBackend) CompressedStream {
	switch backend {
	case BackendStreamVByte:
		return svbEncode([]uint32(stream))
	default:
		return Compress(stream)
	}
}

// DecompressWith is the inverse of CompressWith. count is the number of
// 32-bit words the stream originally held; it must be carried alongside the
// compressed bytes by the caller because, unlike the Golomb-Rice stream,
// StreamVByte's control-byte layout does not self-terminate. ring's length
// word is not this count: it holds the number of compressed words sent.
func DecompressWith(cstream CompressedStream, backend CompressBackend, count int) (ThreshStream, error) {
	switch backend {
	case BackendStreamVByte:
		values, err := svbDecode(cstream, count)
		if err != nil {
			return nil, err
		}
		return ThreshStream(values), nil
	default:
		return Decompress(cstream)
	}
}

// svbEncode frames values as StreamVByte bytes, then reinterprets the byte
// buffer as a CompressedStream of 32-bit words (zero-padding the final word)
// so it shares CompressedStream's wire type with the Rice backend.
func svbEncode(values []uint32) CompressedStream {
	encoded := streamvbyte.EncodeUint32(values, nil)
	return bytesToWords(encoded)
}

// svbDecode is the inverse of svbEncode: it recovers the StreamVByte byte
// buffer from the packed words and decodes exactly count values from it
// using the control-byte layout documented in streamvbyte_format.go.
func svbDecode(cstream CompressedStream, count int) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	data := wordsToBytes([]uint32(cstream))
	return svbDecodeSequential(data, count)
}

func bytesToWords(b []byte) CompressedStream {
	n := (len(b) + 3) / 4
	out := make(CompressedStream, n)
	for i, v := range b {
		out[i/4] |= uint32(v) << uint(8*(i%4))
	}
	return out
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		out[i*4] = byte(w)
		out[i*4+1] = byte(w >> 8)
		out[i*4+2] = byte(w >> 16)
		out[i*4+3] = byte(w >> 24)
	}
	return out
}
