package quant

// Counters tracks per-caller bandwidth and call-count instrumentation, in
// the spirit of the byte/time bookkeeping lbann_quantizer.cpp exposed via
// reset_bytes_counters and reset_time_counters. Unlike a metrics subsystem,
// this is just plain accumulators a caller reads directly; there is no
// exporter or background reporting loop.
type Counters struct {
	BytesSent      int64
	BytesReceived  int64
	QuantizeCalls  int64
	UnquantizeCalls int64
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	*c = Counters{}
}

// RecordSend adds n bytes to BytesSent and increments QuantizeCalls.
func (c *Counters) RecordSend(n int) {
	c.BytesSent += int64(n)
	c.QuantizeCalls++
}

// RecordRecv adds n bytes to BytesReceived and increments UnquantizeCalls.
func (c *Counters) RecordRecv(n int) {
	c.BytesReceived += int64(n)
	c.UnquantizeCalls++
}
