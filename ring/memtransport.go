package ring

import "fmt"

// ChannelTransport is an in-memory Transport backed by per-directed-edge
// byte channels, used by tests and by single-process simulations of a ring
// of peers. Build a full ring with NewChannelRing.
type ChannelTransport struct {
	rank int
	in   map[int]chan []byte // in[from]: messages sent to this rank, keyed by sender
	out  map[int]chan []byte // out[to]: messages this rank sends, keyed by recipient
}

// NewChannelRing builds size ChannelTransports, one per rank, fully wired so
// rank i can Send to / Recv from every other rank (the collectives only ever
// talk to immediate ring neighbors, but the transport itself is general).
func NewChannelRing(size int) []*ChannelTransport {
	// edge[i][j] carries messages sent from i to j, in FIFO order, buffered
	// up to 1024 messages so Send does not block on a slow neighbor until
	// that many are queued.
	edge := make(map[[2]int]chan []byte)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			if i == j {
				continue
			}
			edge[[2]int{i, j}] = make(chan []byte, 1024)
		}
	}

	transports := make([]*ChannelTransport, size)
	for i := 0; i < size; i++ {
		t := &ChannelTransport{
			rank: i,
			in:   make(map[int]chan []byte),
			out:  make(map[int]chan []byte),
		}
		for j := 0; j < size; j++ {
			if i == j {
				continue
			}
			t.in[j] = edge[[2]int{j, i}]
			t.out[j] = edge[[2]int{i, j}]
		}
		transports[i] = t
	}
	return transports
}

func (c *ChannelTransport) Send(to int, data []byte) error {
	ch, ok := c.out[to]
	if !ok {
		return fmt.Errorf("ring: no channel from rank %d to rank %d", c.rank, to)
	}
	ch <- append([]byte(nil), data...)
	return nil
}

func (c *ChannelTransport) Recv(from int) ([]byte, error) {
	ch, ok := c.in[from]
	if !ok {
		return nil, fmt.Errorf("ring: no channel from rank %d to rank %d", from, c.rank)
	}
	data, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("ring: channel from rank %d closed", from)
	}
	return data, nil
}
