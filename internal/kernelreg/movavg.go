package kernelreg

import "github.com/WestonVoglesonger/cortex/internal/wire"

const movavgDefaultN = 4

// movavgKernel computes a causal moving average over the last N samples
// per channel, N read as a little-endian uint32 from plugin_params
// (default movavgDefaultN). Each window is averaged independently: the
// first N-1 outputs of a window average only the samples seen so far in
// that window (out[s] = sum(in[0..s]) / (s+1)), which keeps the kernel
// stateless and safe to reuse across any schedule of window sizes.
type movavgKernel struct {
	n uint32
	c uint32
}

func (k *movavgKernel) Name() string { return "movavg" }

func (k *movavgKernel) Init(cfg KernelConfig, calibration []byte) (OutputShape, error) {
	k.n = movavgDefaultN
	if len(cfg.PluginParams) >= 4 {
		if n := wire.U32(cfg.PluginParams, 0); n > 0 {
			k.n = n
		}
	}
	k.c = cfg.C
	return OutputShape{}, nil
}

func (k *movavgKernel) Execute(window []float32) (out []float32, err error) {
	c := int(k.c)
	if c == 0 {
		c = 1
	}
	samples := len(window) / c
	out = make([]float32, len(window))

	for ch := 0; ch < c; ch++ {
		var sum float32
		for s := 0; s < samples; s++ {
			sum += window[s*c+ch]
			if s >= int(k.n) {
				sum -= window[(s-int(k.n))*c+ch]
				out[s*c+ch] = sum / float32(k.n)
			} else {
				out[s*c+ch] = sum / float32(s+1)
			}
		}
	}
	return out, nil
}

func (k *movavgKernel) Close() error { return nil }
