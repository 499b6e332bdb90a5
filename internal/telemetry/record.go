// Package telemetry holds the append-only record buffer and its
// CSV/NDJSON writers, including the system-info header every file
// carries.
package telemetry

// Record is one device's observations for one window dispatch.
type Record struct {
	RunID       string
	PluginName  string
	AdapterName string
	WindowIndex uint64
	W, H, C, Fs uint32
	Warmup      bool
	RepeatIndex int

	ReleaseTsNs   int64
	DeadlineTsNs  int64
	HostStartTsNs int64
	HostEndTsNs   int64

	DeviceTin      int64
	DeviceTstart   int64
	DeviceTend     int64
	DeviceTfirstTx int64
	DeviceTlastTx  int64

	DeadlineMissed bool
	WindowFailed   bool
	ErrorCode      int32
}

// columnOrder is the stable CSV/NDJSON field order, matching the data
// model's record field order.
var columnOrder = []string{
	"run_id", "plugin_name", "adapter_name", "window_index",
	"W", "H", "C", "Fs", "warmup", "repeat_index",
	"release_ts_ns", "deadline_ts_ns", "host_start_ts_ns", "host_end_ts_ns",
	"deadline_missed",
	"device_tin", "device_tstart", "device_tend", "device_tfirst_tx", "device_tlast_tx",
	"window_failed", "error_code",
}
