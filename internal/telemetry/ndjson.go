package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

type systemInfoLine struct {
	Type        string   `json:"_type"`
	OSName      string   `json:"os_name"`
	OSVersion   string   `json:"os_version"`
	Hostname    string   `json:"hostname"`
	CPUModel    string   `json:"cpu_model"`
	CPUCount    int      `json:"cpu_count"`
	RAMMiB      uint64   `json:"ram_mib"`
	ThermalC    *float64 `json:"thermal_c"`
	PID         int      `json:"pid"`
	GoVersion   string   `json:"go_version"`
	ProcessNCPU int      `json:"process_ncpu"`
}

type recordLine struct {
	RunID          string `json:"run_id"`
	PluginName     string `json:"plugin_name"`
	AdapterName    string `json:"adapter_name"`
	WindowIndex    uint64 `json:"window_index"`
	W              uint32 `json:"W"`
	H              uint32 `json:"H"`
	C              uint32 `json:"C"`
	Fs             uint32 `json:"Fs"`
	Warmup         bool   `json:"warmup"`
	RepeatIndex    int    `json:"repeat_index"`
	ReleaseTsNs    int64  `json:"release_ts_ns"`
	DeadlineTsNs   int64  `json:"deadline_ts_ns"`
	HostStartTsNs  int64  `json:"host_start_ts_ns"`
	HostEndTsNs    int64  `json:"host_end_ts_ns"`
	DeadlineMissed bool   `json:"deadline_missed"`
	DeviceTin      int64  `json:"device_tin"`
	DeviceTstart   int64  `json:"device_tstart"`
	DeviceTend     int64  `json:"device_tend"`
	DeviceTfirstTx int64  `json:"device_tfirst_tx"`
	DeviceTlastTx  int64  `json:"device_tlast_tx"`
	WindowFailed   bool   `json:"window_failed"`
	ErrorCode      int32  `json:"error_code"`
}

// WriteNDJSON writes records to path as newline-delimited JSON, preceded
// by a leading {"_type":"system_info",...} record. encoding/json's
// struct-tag-ordered marshaling gives the same stable field order as the
// CSV writer's columnOrder without a hand-rolled encoder.
func WriteNDJSON(path string, info SystemInfo, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("telemetry: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	if err := enc.Encode(systemInfoLine{
		Type:        "system_info",
		OSName:      info.OSName,
		OSVersion:   info.OSVersion,
		Hostname:    info.Hostname,
		CPUModel:    info.CPUModel,
		CPUCount:    info.CPUCount,
		RAMMiB:      info.RAMMiB,
		ThermalC:    info.ThermalC,
		PID:         info.PID,
		GoVersion:   info.GoVersion,
		ProcessNCPU: info.ProcessNCPU,
	}); err != nil {
		return err
	}
	for _, r := range records {
		if err := enc.Encode(toRecordLine(r)); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteFullNDJSON writes every record currently in buf.
func WriteFullNDJSON(path string, info SystemInfo, buf *Buffer) error {
	records, err := buf.Range(0, buf.Len())
	if err != nil {
		return err
	}
	return WriteNDJSON(path, info, records)
}

func toRecordLine(r Record) recordLine {
	return recordLine{
		RunID:          r.RunID,
		PluginName:     r.PluginName,
		AdapterName:    r.AdapterName,
		WindowIndex:    r.WindowIndex,
		W:              r.W,
		H:              r.H,
		C:              r.C,
		Fs:             r.Fs,
		Warmup:         r.Warmup,
		RepeatIndex:    r.RepeatIndex,
		ReleaseTsNs:    r.ReleaseTsNs,
		DeadlineTsNs:   r.DeadlineTsNs,
		HostStartTsNs:  r.HostStartTsNs,
		HostEndTsNs:    r.HostEndTsNs,
		DeadlineMissed: r.DeadlineMissed,
		DeviceTin:      r.DeviceTin,
		DeviceTstart:   r.DeviceTstart,
		DeviceTend:     r.DeviceTend,
		DeviceTfirstTx: r.DeviceTfirstTx,
		DeviceTlastTx:  r.DeviceTlastTx,
		WindowFailed:   r.WindowFailed,
		ErrorCode:      r.ErrorCode,
	}
}
