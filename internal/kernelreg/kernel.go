// Package kernelreg hosts the reference signal-processing kernels that
// ship with cortex-adapter, along with the small registry used to look
// one up by name during CONFIG handling.
package kernelreg

import "github.com/WestonVoglesonger/cortex/internal/cortexerr"

// KernelConfig carries the runtime parameters an adapter derived from a
// CONFIG frame: window/hop/channel geometry and the plugin's opaque
// parameter blob.
type KernelConfig struct {
	Fs           uint32
	W            uint32
	H            uint32
	C            uint32
	PluginParams []byte
}

// OutputShape is what Init reports back to the adapter so it can build
// the ACK frame; zero values mean "same as input".
type OutputShape struct {
	OutputSamples  uint32
	OutputChannels uint32
}

// Kernel is the minimal numerical contract an adapter hosts: initialize
// once per session, execute synchronously once per window, release on
// session end.
type Kernel interface {
	Name() string
	Init(cfg KernelConfig, calibration []byte) (OutputShape, error)
	Execute(window []float32) (out []float32, err error)
	Close() error
}

// Factory constructs a fresh Kernel instance; the registry holds one
// factory per name so every session gets an unshared kernel.
type Factory func() Kernel

// Registry maps kernel names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry pre-populated with the built-in
// reference kernels.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("identity", func() Kernel { return &identityKernel{} })
	r.Register("gain", func() Kernel { return &gainKernel{} })
	r.Register("movavg", func() Kernel { return &movavgKernel{} })
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered kernel names for a HELLO frame's
// kernel_names field: the built-ins first, in a fixed order, then any
// other registered names in unspecified (map iteration) order.
func (r *Registry) Names() []string {
	// Fixed order matches registration order of the built-ins; any
	// kernel registered afterward is appended in map iteration order,
	// which is acceptable since it would only affect plugin discovery
	// ordering, not handshake correctness.
	ordered := []string{"identity", "gain", "movavg"}
	names := make([]string, 0, len(r.factories))
	for _, n := range ordered {
		if _, ok := r.factories[n]; ok {
			names = append(names, n)
		}
	}
	for n := range r.factories {
		found := false
		for _, o := range ordered {
			if o == n {
				found = true
				break
			}
		}
		if !found {
			names = append(names, n)
		}
	}
	return names
}

// New constructs a fresh Kernel instance for name.
func (r *Registry) New(name string) (Kernel, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, cortexerr.New("kernelreg_new", cortexerr.KERNEL_NOT_FOUND, "no kernel registered with name "+name)
	}
	return f(), nil
}
