package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Transport moves raw byte messages to and from ring-adjacent peers. Send to
// rank must be strictly FIFO with respect to earlier sends to the same rank;
// Recv from rank blocks until a message sent to this rank by that peer is
// available.
//
// A transport failure (dropped peer, closed connection) must surface as a
// non-nil error from Send or Recv; the collective that observes it is fatal
// end-to-end.
type Transport interface {
	Send(to int, data []byte) error
	Recv(from int) ([]byte, error)
}

// ErrTransportFailed wraps any error returned by a Transport so callers can
// distinguish collective-fatal transport errors from codec errors (e.g.
// ErrMalformedStream) with errors.Is.
var ErrTransportFailed = errors.New("ring: transport failure")

// wordsToBytes serializes words as 32-bit little-endian.
func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func bytesToWords(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

// sendMessage writes a 32-bit little-endian length word (the count of
// 32-bit payload words) followed by the payload: a fixed-size send/recv for
// the length, then the payload transfer.
func sendMessage(t Transport, to int, payload []uint32) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if err := t.Send(to, lenBuf[:]); err != nil {
		return fmt.Errorf("%w: sending length word to rank %d: %v", ErrTransportFailed, to, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if err := t.Send(to, wordsToBytes(payload)); err != nil {
		return fmt.Errorf("%w: sending payload to rank %d: %v", ErrTransportFailed, to, err)
	}
	return nil
}

// recvMessage reads a message framed by sendMessage.
func recvMessage(t Transport, from int) ([]uint32, error) {
	lenBuf, err := t.Recv(from)
	if err != nil {
		return nil, fmt.Errorf("%w: receiving length word from rank %d: %v", ErrTransportFailed, from, err)
	}
	if len(lenBuf) != 4 {
		return nil, fmt.Errorf("%w: malformed length word from rank %d (%d bytes)", ErrTransportFailed, from, len(lenBuf))
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	if n == 0 {
		return nil, nil
	}
	payload, err := t.Recv(from)
	if err != nil {
		return nil, fmt.Errorf("%w: receiving payload from rank %d: %v", ErrTransportFailed, from, err)
	}
	return bytesToWords(payload), nil
}
