package quant

// Scheme selects which of the three quantization schemes an
// Options-driven call site uses.
type Scheme int

const (
	SchemeOneBit Scheme = iota
	SchemeThreshold
	SchemeAdaptive
)

// options holds the resolved configuration recognized by Quantize.
// Unexported: callers build one via Option constructors and resolve(), never
// by field access, matching the lvlath functional-options convention.
type options struct {
	scheme     Scheme
	sample     bool
	delta      bool
	compress   bool
	backend    CompressBackend
	proportion int
	posThresh  float32
	negThresh  float32
}

const defaultProportion = 10

func defaultOptions(scheme Scheme) options {
	return options{scheme: scheme, proportion: defaultProportion, backend: BackendGolombRice}
}

// Option configures a quantization call built through Quantize.
type Option func(*options)

// WithSample enables approximate per-column averages for the one-bit scheme.
// Ignored by the threshold and adaptive schemes.
func WithSample(sample bool) Option {
	return func(o *options) { o.sample = sample }
}

// WithDelta enables delta-position encoding for the threshold and adaptive
// schemes.
func WithDelta(delta bool) Option {
	return func(o *options) { o.delta = delta }
}

// WithCompress layers an entropy-coding backend over the threshold/adaptive
// output.
func WithCompress(compress bool) Option {
	return func(o *options) { o.compress = compress }
}

// WithCompressBackend selects which backend WithCompress(true) uses.
func WithCompressBackend(backend CompressBackend) Option {
	return func(o *options) { o.backend = backend }
}

// WithProportion sets the `p` for the adaptive scheme. Panics at
// resolve() time if proportion < 1.
func WithProportion(p int) Option {
	return func(o *options) { o.proportion = p }
}

// WithThresholds sets the fixed cutoffs for SchemeThreshold.
func WithThresholds(pos, neg float32) Option {
	return func(o *options) { o.posThresh, o.negThresh = pos, neg }
}

func (o options) resolve() options {
	if o.proportion < 1 {
		panic("quant: WithProportion: proportion must be >= 1")
	}
	return o
}

// Options bundles a Scheme with its configuration for one Quantize call.
type Options struct {
	opts options
}

// NewOptions builds an Options value for the given scheme, applying opts in
// order. Defaults: proportion 10, compress off, backend BackendGolombRice.
func NewOptions(scheme Scheme, opts ...Option) Options {
	o := defaultOptions(scheme)
	for _, apply := range opts {
		apply(&o)
	}
	return Options{opts: o.resolve()}
}

// Quantize is the single-entry-point form of the three schemes: it dispatches
// to the scheme named in o, optionally compressing the result, and always
// returns a CompressedStream. The one-bit scheme's QuantizedMatrix is framed
// as its raw []uint32 form with compress forced off, since Golomb-Rice coding
// is only defined over the threshold/adaptive position streams.
func Quantize(o Options, src, residual Matrix, rng Sampler) (CompressedStream, error) {
	switch o.opts.scheme {
	case SchemeOneBit:
		q := QuantizeOneBit(src, residual, o.opts.sample, rng)
		return CompressedStream(q.Data), nil
	case SchemeThreshold:
		stream := ThresholdQuantize(src, residual, o.opts.posThresh, o.opts.negThresh, o.opts.delta)
		return maybeCompress(stream, o.opts), nil
	case SchemeAdaptive:
		stream := AdaptiveThresholdQuantize(src, residual, o.opts.proportion, o.opts.delta, rng)
		return maybeCompress(stream, o.opts), nil
	default:
		panic("quant: Quantize: unknown scheme")
	}
}

func maybeCompress(stream ThreshStream, o options) CompressedStream {
	if !o.compress {
		return CompressedStream(stream)
	}
	return CompressWith(stream, o.backend)
}
