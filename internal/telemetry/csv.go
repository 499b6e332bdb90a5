package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// WriteCSV writes records to path as CSV, preceded by
// #-prefixed comment lines carrying the system-info header.
func WriteCSV(path string, info SystemInfo, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("telemetry: create %s: %w", path, err)
	}
	defer f.Close()

	if err := writeSystemInfoComments(f, info); err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(columnOrder); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(recordRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteFullCSV writes every record currently in buf.
func WriteFullCSV(path string, info SystemInfo, buf *Buffer) error {
	records, err := buf.Range(0, buf.Len())
	if err != nil {
		return err
	}
	return WriteCSV(path, info, records)
}

func writeSystemInfoComments(f *os.File, info SystemInfo) error {
	lines := []string{
		fmt.Sprintf("# os_name=%s", info.OSName),
		fmt.Sprintf("# os_version=%s", info.OSVersion),
		fmt.Sprintf("# hostname=%s", info.Hostname),
		fmt.Sprintf("# cpu_model=%s", info.CPUModel),
		fmt.Sprintf("# cpu_count=%d", info.CPUCount),
		fmt.Sprintf("# ram_mib=%d", info.RAMMiB),
		fmt.Sprintf("# pid=%d", info.PID),
		fmt.Sprintf("# go_version=%s", info.GoVersion),
		fmt.Sprintf("# process_ncpu=%d", info.ProcessNCPU),
	}
	if info.ThermalC != nil {
		lines = append(lines, fmt.Sprintf("# thermal_c=%s", strconv.FormatFloat(*info.ThermalC, 'f', 1, 64)))
	} else {
		lines = append(lines, "# thermal_c=")
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return err
		}
	}
	return nil
}

func recordRow(r Record) []string {
	return []string{
		r.RunID,
		r.PluginName,
		r.AdapterName,
		strconv.FormatUint(r.WindowIndex, 10),
		strconv.FormatUint(uint64(r.W), 10),
		strconv.FormatUint(uint64(r.H), 10),
		strconv.FormatUint(uint64(r.C), 10),
		strconv.FormatUint(uint64(r.Fs), 10),
		strconv.FormatBool(r.Warmup),
		strconv.Itoa(r.RepeatIndex),
		strconv.FormatInt(r.ReleaseTsNs, 10),
		strconv.FormatInt(r.DeadlineTsNs, 10),
		strconv.FormatInt(r.HostStartTsNs, 10),
		strconv.FormatInt(r.HostEndTsNs, 10),
		strconv.FormatBool(r.DeadlineMissed),
		strconv.FormatInt(r.DeviceTin, 10),
		strconv.FormatInt(r.DeviceTstart, 10),
		strconv.FormatInt(r.DeviceTend, 10),
		strconv.FormatInt(r.DeviceTfirstTx, 10),
		strconv.FormatInt(r.DeviceTlastTx, 10),
		strconv.FormatBool(r.WindowFailed),
		strconv.FormatInt(int64(r.ErrorCode), 10),
	}
}
