package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
dataset:
  path: /data/eeg.bin
  sample_format: float32
  channels: 64
  sample_rate_hz: 1000

realtime:
  policy: fifo
  priority: 50
  deadline_ms: 1000

benchmark:
  duration_seconds: 10
  repeats: 1
  warmup_seconds: 1

output:
  directory: /tmp/out
  format: ndjson

plugins:
  - name: identity
    status: ready
    spec_uri: file:///specs/identity.yaml
    adapter_path: /bin/cortex-adapter
    transport_uri: local://
    runtime:
      W: 256
      H: 128
      C: 64
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(64), cfg.Dataset.Channels)
	require.Len(t, cfg.Plugins, 1)
	require.Equal(t, "float32", cfg.Plugins[0].Runtime.Dtype)
}

func TestLoadAppliesRuntimeDefaults(t *testing.T) {
	yaml := `
dataset:
  channels: 64
  sample_rate_hz: 1000
realtime:
  deadline_ms: 1000
plugins:
  - name: p
    status: draft
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(160), cfg.Plugins[0].Runtime.W)
	require.Equal(t, uint32(80), cfg.Plugins[0].Runtime.H)
	require.Equal(t, uint32(64), cfg.Plugins[0].Runtime.C)
}

func TestLoadRejectsChannelMismatch(t *testing.T) {
	yaml := `
dataset:
  channels: 64
  sample_rate_hz: 1000
realtime:
  deadline_ms: 1000
plugins:
  - name: p
    status: draft
    runtime:
      W: 160
      H: 80
      C: 32
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsReadyWithoutSpecURI(t *testing.T) {
	yaml := `
dataset:
  channels: 64
  sample_rate_hz: 1000
realtime:
  deadline_ms: 1000
plugins:
  - name: p
    status: ready
    runtime:
      W: 160
      H: 80
      C: 64
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDeadlineTooLow(t *testing.T) {
	yaml := `
dataset:
  channels: 64
  sample_rate_hz: 1000
realtime:
  deadline_ms: 1
plugins:
  - name: p
    status: draft
    runtime:
      W: 160
      H: 80
      C: 64
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeTemp(t, validYAML)

	t.Setenv("CORTEX_OUTPUT_DIR", "/override/dir")
	t.Setenv("CORTEX_TRANSPORT_URI", "tcp://127.0.0.1:9000")
	t.Setenv("CORTEX_KERNEL_FILTER", "identity")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/override/dir", cfg.Output.Directory)
	require.Equal(t, "tcp://127.0.0.1:9000", cfg.Plugins[0].TransportURI)
	require.Len(t, cfg.Plugins, 1)
}

func TestEnvKernelFilterDropsNonMatching(t *testing.T) {
	yaml := validYAML + `
  - name: gain
    status: draft
    runtime:
      W: 160
      H: 80
      C: 64
`
	path := writeTemp(t, yaml)
	t.Setenv("CORTEX_KERNEL_FILTER", "gain")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Plugins, 1)
	require.Equal(t, "gain", cfg.Plugins[0].Name)
}

func TestEnvKernelFilterAllowsCommaSeparatedList(t *testing.T) {
	yaml := validYAML + `
  - name: gain
    status: draft
    runtime:
      W: 160
      H: 80
      C: 64
`
	path := writeTemp(t, yaml)
	t.Setenv("CORTEX_KERNEL_FILTER", "identity, gain")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Plugins, 2)
}
