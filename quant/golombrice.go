package quant

// DefaultRiceK is the Rice parameter used by Compress/Decompress, chosen for
// the expected sparsity of threshold-coded gradient streams.
const DefaultRiceK = 8

// GolombRiceEncode Rice-codes every value in values with parameter k,
// packing quotient-as-unary followed by a k-bit remainder into a sequence of
// 32-bit words, LSB-first. The returned slice always ends with a
// terminator: either the final partial word padded with ones, or (for an
// empty input, or an input whose last word lands exactly on a 32-bit
// boundary) one additional all-ones word.
func GolombRiceEncode(values []uint32, k int) []uint32 {
	w := riceWriter{k: k}
	for _, v := range values {
		w.writeValue(v)
	}
	w.terminate()
	return w.out
}

// riceWriter accumulates bits LSB-first into 32-bit words.
type riceWriter struct {
	out   []uint32
	acc   uint64
	nbits int
	k     int
}

func (w *riceWriter) writeBit(b uint32) {
	w.acc |= uint64(b&1) << uint(w.nbits)
	w.nbits++
	if w.nbits == 32 {
		w.out = append(w.out, uint32(w.acc))
		w.acc = 0
		w.nbits = 0
	}
}

func (w *riceWriter) writeBits(v uint32, n int) {
	for i := 0; i < n; i++ {
		w.writeBit((v >> uint(i)) & 1)
	}
}

func (w *riceWriter) writeValue(x uint32) {
	m := uint32(1) << uint(w.k)
	q := x >> uint(w.k)
	r := x & (m - 1)
	for i := uint32(0); i < q; i++ {
		w.writeBit(1)
	}
	w.writeBit(0)
	w.writeBits(r, w.k)
}

// terminate pads the stream so the decoder can recognize end-of-stream: if
// the current word is partially filled, its unused high bits are set to one
// and flushed; if the current word is empty (including the empty-input
// case), a fresh all-ones word is appended.
func (w *riceWriter) terminate() {
	if w.nbits == 0 {
		w.out = append(w.out, ^uint32(0))
		return
	}
	for w.nbits > 0 {
		w.writeBit(1)
	}
}

// GolombRiceDecode is the inverse of GolombRiceEncode. It decodes values
// until it encounters the terminator (a unary quotient run that starts in the
// final word and reaches the end of the buffer without finding its
// terminating zero) and returns them. A run of ones that starts before the
// final word and reaches the end of the buffer, or a valid quotient
// terminator followed by fewer than k remaining bits, is reported as
// ErrMalformedStream.
func GolombRiceDecode(words []uint32, k int) ([]uint32, error) {
	r := riceReader{words: words, k: k, total: len(words) * 32}
	var out []uint32
	for {
		v, ok, err := r.readValue()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

type riceReader struct {
	words []uint32
	pos   int
	total int
	k     int
}

func (r *riceReader) bit(pos int) uint32 {
	return (r.words[pos/32] >> uint(pos%32)) & 1
}

// readValue decodes the next Rice codeword. ok is false when the unary
// quotient run ran off the end of the buffer (the terminator).
func (r *riceReader) readValue() (value uint32, ok bool, err error) {
	start := r.pos
	q := uint32(0)
	for {
		if r.pos >= r.total {
			// The encoder's terminator always starts inside the final
			// word: either the ones padding of a partial word or one
			// all-ones word. A longer run is a truncated quotient.
			if start < r.total-32 {
				return 0, false, ErrMalformedStream
			}
			return 0, false, nil
		}
		if r.bit(r.pos) == 0 {
			r.pos++
			break
		}
		r.pos++
		q++
	}
	if r.total-r.pos < r.k {
		return 0, false, ErrMalformedStream
	}
	var rem uint32
	for i := 0; i < r.k; i++ {
		rem |= r.bit(r.pos) << uint(i)
		r.pos++
	}
	m := uint32(1) << uint(r.k)
	return q*m + rem, true, nil
}

// CompressedStream is the Golomb-Rice-coded wire form of a ThreshStream.
type CompressedStream []uint32

// Compress layers Golomb-Rice coding over a
// ThresholdQuantize/AdaptiveThresholdQuantize output at the DefaultRiceK
// parameter.
func Compress(stream ThreshStream) CompressedStream {
	return CompressedStream(GolombRiceEncode([]uint32(stream), DefaultRiceK))
}

// Decompress is the inverse of Compress.
func Decompress(cstream CompressedStream) (ThreshStream, error) {
	values, err := GolombRiceDecode([]uint32(cstream), DefaultRiceK)
	if err != nil {
		return nil, err
	}
	return ThreshStream(values), nil
}
