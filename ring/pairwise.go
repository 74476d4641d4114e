package ring

import "github.com/Jmast/lbann/quant"

// PairwiseSumQuantized runs an O(size) point-to-point quantized all-reduce:
// every rank quantizes its own matrix once and broadcasts the same payload
// to every other rank in turn, accumulating whatever it receives from each
// peer as that peer's turn comes up. It trades the ring algorithm's
// bandwidth-optimality for simplicity and lower latency at small peer
// counts, mirroring intermodel_sum_quantized2's one-quantize-pass design.
//
// Every rank must call PairwiseSumQuantized with the same rank numbering
// and size, and all ranks must reach round i at roughly the same time since
// round i is rank i's broadcast; Transport implementations used here should
// buffer enough that a broadcaster's fan-out sends don't block waiting for
// every peer to have posted its receive (ChannelTransport does this).
func PairwiseSumQuantized(t Transport, rank, size int, mat, qerror quant.Matrix, sample bool, rng quant.Sampler) error {
	q := quant.QuantizeOneBit(mat, qerror, sample, rng)

	for i := 0; i < size; i++ {
		if i == rank {
			for dst := 0; dst < size; dst++ {
				if dst == rank {
					continue
				}
				if err := sendMessage(t, dst, q.Data); err != nil {
					return err
				}
			}
			continue
		}
		payload, err := recvMessage(t, i)
		if err != nil {
			return err
		}
		recvQ := quant.QuantizedMatrix{Data: payload, Height: mat.Height, Width: mat.Width}
		quant.UnquantizeOneBit(recvQ, mat, true)
	}
	return nil
}
