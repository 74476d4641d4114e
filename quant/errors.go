package quant

import "errors"

// ErrMalformedStream is returned when a compressed Golomb-Rice bitstream
// contains a quotient unary run that runs past the end of the buffer without
// a terminating zero or the all-ones end-of-stream sentinel, or a codeword
// whose remainder bits are cut off by the end of the buffer.
var ErrMalformedStream = errors.New("quant: malformed compressed stream")

// ErrTooManyEntries is panicked by the threshold codec when a communication
// slice holds more entries than the 31-bit position encoding can address.
var ErrTooManyEntries = errors.New("quant: slice exceeds 2^31 entries, threshold position encoding cannot address it")
