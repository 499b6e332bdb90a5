package kernelreg

// identityKernel copies its input window to the output unchanged. It
// exists so the harness can be exercised end-to-end without any
// external plugin: output shape always matches input shape.
type identityKernel struct {
	channels uint32
}

func (k *identityKernel) Name() string { return "identity" }

func (k *identityKernel) Init(cfg KernelConfig, calibration []byte) (OutputShape, error) {
	k.channels = cfg.C
	return OutputShape{}, nil
}

func (k *identityKernel) Execute(window []float32) (out []float32, err error) {
	out = make([]float32, len(window))
	copy(out, window)
	return out, nil
}

func (k *identityKernel) Close() error { return nil }
