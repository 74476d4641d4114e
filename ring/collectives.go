package ring

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Jmast/lbann/quant"
)

// SendTransform encodes one row-slice of a matrix into a wire payload for
// the reduce-scatter phase. sliceIdx is the slice's logical index (the same
// index sliceBounds would be called with), letting the caller index its own
// per-slice residual buffers without recovering offsets from pointers.
type SendTransform func(slice quant.Matrix, sliceIdx int) ([]uint32, error)

// RecvTransform decodes a received payload into dst. ReduceScatter callers
// accumulate (add into dst); AllGather callers overwrite (dst holds fresh
// final values, nothing to accumulate with). sliceIdx is dst's logical
// slice index.
type RecvTransform func(payload []uint32, dst quant.Matrix, sliceIdx int) error

// ReducedTransform produces the all-gather phase's first outgoing payload
// from the slice this rank just finished reducing. SumQuantized uses this
// hook to apply an AdaGrad-style update before quantizing. sliceIdx is the
// owned slice's logical index.
type ReducedTransform func(reduced quant.Matrix, sliceIdx int) ([]uint32, error)

// SwapBuffersFunc decides what an all-gather round forwards to the next
// peer: by default, whatever was just received (a ring only ever forwards
// bytes once produced, it never re-encodes them). DefaultSwapBuffers
// implements that; a caller with a buffer pool can supply its own.
type SwapBuffersFunc func(received []uint32) []uint32

// DefaultSwapBuffers forwards the received payload unchanged.
func DefaultSwapBuffers(received []uint32) []uint32 { return received }

func (r Ring) recordSend(payload []uint32) {
	if r.Counters != nil {
		r.Counters.RecordSend(len(payload) * 4)
	}
}

func (r Ring) recordRecv(payload []uint32) {
	if r.Counters != nil {
		r.Counters.RecordRecv(len(payload) * 4)
	}
}

// postRecvThenSend runs recv concurrently with send so that neither blocks
// on the other: every peer in the ring posts its receive before sending,
// which is what makes the protocol deadlock-free regardless of whether the
// Transport's Send is buffered or synchronous.
func postRecvThenSend(t Transport, from, to int, payload []uint32) ([]uint32, error) {
	type recvResult struct {
		payload []uint32
		err     error
	}
	done := make(chan recvResult, 1)
	go func() {
		p, err := recvMessage(t, from)
		done <- recvResult{p, err}
	}()

	if err := sendMessage(t, to, payload); err != nil {
		<-done // drain so the goroutine doesn't leak
		return nil, err
	}
	result := <-done
	return result.payload, result.err
}

// ReduceScatter runs the reduce-scatter phase of a ring all-reduce over
// mat: after r.Size-1 steps, rank r holds the fully-summed contents of
// exactly one row-slice, at index (r+1)%r.Size. Every other slice holds
// either this rank's original contribution (slice r) or a partial sum that
// was accumulated on the way.
func ReduceScatter(r Ring, mat quant.Matrix, send SendTransform, recv RecvTransform) error {
	if r.Size < 2 {
		return nil
	}
	for step := 0; step < r.Size-1; step++ {
		sendIdx := mod(r.Rank-step, r.Size)
		recvIdx := mod(r.Rank-step-1, r.Size)

		sStart, sEnd := sliceBounds(mat.Height, r.Size, sendIdx)
		payload, err := send(sliceView(mat, sStart, sEnd), sendIdx)
		if err != nil {
			return fmt.Errorf("ring: reduce-scatter step %d: encode slice %d: %w", step, sendIdx, err)
		}

		log.Debug().Int("rank", r.Rank).Int("step", step).Int("send_slice", sendIdx).
			Int("recv_slice", recvIdx).Int("words", len(payload)).Msg("reduce-scatter step")

		r.recordSend(payload)
		recvPayload, err := postRecvThenSend(r.Transport, r.left(), r.right(), payload)
		if err != nil {
			log.Error().Err(err).Int("rank", r.Rank).Int("step", step).Msg("reduce-scatter transport failure")
			return err
		}
		r.recordRecv(recvPayload)

		rStart, rEnd := sliceBounds(mat.Height, r.Size, recvIdx)
		if err := recv(recvPayload, sliceView(mat, rStart, rEnd), recvIdx); err != nil {
			return fmt.Errorf("ring: reduce-scatter step %d: decode slice %d: %w", step, recvIdx, err)
		}
	}
	return nil
}

// AllGather runs the all-gather phase: it assumes rank r already holds the
// fully-reduced slice at index (r+1)%r.Size (ReduceScatter's postcondition)
// and propagates every rank's reduced slice to every other rank, so mat ends
// up identical bit-for-bit across the whole ring. The owner's own slice is
// never exchanged over the transport, but every peer (including the owner)
// must end up holding the same reconstruction of it, so the owner decodes
// its own just-quantized payload back into its slice before broadcasting —
// otherwise the owner would keep the full-precision value while every other
// peer receives and decodes the lossy reconstruction, breaking bit-exactness.
func AllGather(r Ring, mat quant.Matrix, reduced ReducedTransform, recv RecvTransform, swap SwapBuffersFunc) error {
	if r.Size < 2 {
		return nil
	}
	if swap == nil {
		swap = DefaultSwapBuffers
	}

	ownedIdx := mod(r.Rank+1, r.Size)
	oStart, oEnd := sliceBounds(mat.Height, r.Size, ownedIdx)
	payload, err := reduced(sliceView(mat, oStart, oEnd), ownedIdx)
	if err != nil {
		return fmt.Errorf("ring: all-gather: encode owned slice %d: %w", ownedIdx, err)
	}
	if err := recv(payload, sliceView(mat, oStart, oEnd), ownedIdx); err != nil {
		return fmt.Errorf("ring: all-gather: decode owned slice %d: %w", ownedIdx, err)
	}

	for step := 0; step < r.Size-1; step++ {
		sendIdx := mod(ownedIdx-step, r.Size)
		recvIdx := mod(ownedIdx-step-1, r.Size)

		log.Debug().Int("rank", r.Rank).Int("step", step).Int("send_slice", sendIdx).
			Int("recv_slice", recvIdx).Int("words", len(payload)).Msg("all-gather step")

		r.recordSend(payload)
		recvPayload, err := postRecvThenSend(r.Transport, r.left(), r.right(), payload)
		if err != nil {
			log.Error().Err(err).Int("rank", r.Rank).Int("step", step).Msg("all-gather transport failure")
			return err
		}
		r.recordRecv(recvPayload)

		rStart, rEnd := sliceBounds(mat.Height, r.Size, recvIdx)
		if err := recv(recvPayload, sliceView(mat, rStart, rEnd), recvIdx); err != nil {
			return fmt.Errorf("ring: all-gather step %d: decode slice %d: %w", step, recvIdx, err)
		}
		payload = swap(recvPayload)
	}
	return nil
}
