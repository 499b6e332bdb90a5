package kernelreg

import "github.com/WestonVoglesonger/cortex/internal/wire"

// gainKernel scales every sample by a fixed gain. The gain is read as a
// little-endian float32 from the first four bytes of plugin_params;
// missing or short params default to unity gain.
type gainKernel struct {
	gain float32
}

func (k *gainKernel) Name() string { return "gain" }

func (k *gainKernel) Init(cfg KernelConfig, calibration []byte) (OutputShape, error) {
	k.gain = 1.0
	if len(cfg.PluginParams) >= 4 {
		k.gain = wire.F32(cfg.PluginParams, 0)
	}
	return OutputShape{}, nil
}

func (k *gainKernel) Execute(window []float32) (out []float32, err error) {
	out = make([]float32, len(window))
	for i, s := range window {
		out[i] = s * k.gain
	}
	return out, nil
}

func (k *gainKernel) Close() error { return nil }
