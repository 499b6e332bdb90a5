package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		RunID:          "run-1",
		PluginName:     "identity",
		AdapterName:    "sim",
		WindowIndex:    3,
		W:              256,
		H:              128,
		C:              64,
		Fs:             1000,
		Warmup:         false,
		RepeatIndex:    0,
		ReleaseTsNs:    100,
		DeadlineTsNs:   200,
		HostStartTsNs:  110,
		HostEndTsNs:    190,
		DeadlineMissed: false,
		DeviceTin:      111,
		DeviceTstart:   112,
		DeviceTend:     180,
		DeviceTfirstTx: 181,
		DeviceTlastTx:  185,
		WindowFailed:   false,
		ErrorCode:      0,
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	info := SystemInfo{OSName: "linux", CPUCount: 4, RAMMiB: 8192, PID: 1234, GoVersion: "go1.22", ProcessNCPU: 2}

	require.NoError(t, WriteCSV(path, info, []Record{sampleRecord()}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.True(t, strings.HasPrefix(content, "# os_name=linux"))
	require.Contains(t, content, "# pid=1234")
	require.Contains(t, content, "# go_version=go1.22")
	require.Contains(t, content, "# process_ncpu=2")
	require.Contains(t, content, "run_id,plugin_name,adapter_name")
	require.Contains(t, content, "run-1,identity,sim,3,256,128,64,1000")
}

func TestWriteFullCSVUsesAllRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	buf := NewBuffer(0)
	require.NoError(t, buf.Append(sampleRecord()))
	require.NoError(t, buf.Append(sampleRecord()))

	require.NoError(t, WriteFullCSV(path, SystemInfo{}, buf))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	// 10 #-prefixed system-info lines (thermal_c included, empty) + header + 2 records
	dataLines := 0
	for _, l := range lines {
		if !strings.HasPrefix(l, "#") {
			dataLines++
		}
	}
	require.Equal(t, 3, dataLines) // header + 2 records
}
