package telemetry

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo is the header every telemetry file carries, so a run's
// timings can be read back alongside the hardware that produced them.
type SystemInfo struct {
	OSName    string
	OSVersion string
	Hostname  string
	CPUModel  string
	CPUCount  int
	RAMMiB    uint64
	ThermalC  *float64 // nil when no sensor is available

	PID         int
	GoVersion   string
	ProcessNCPU int // runtime.NumCPU as observed by the process; may differ from CPUCount under cgroup limits
}

// CollectSystemInfo gathers a best-effort snapshot of the host running
// the benchmark. Individual fields are left at their zero value when the
// underlying gopsutil call fails rather than aborting the run over a
// cosmetic header field.
func CollectSystemInfo() SystemInfo {
	info := SystemInfo{
		PID:         os.Getpid(),
		GoVersion:   runtime.Version(),
		ProcessNCPU: runtime.NumCPU(),
	}

	if hi, err := host.Info(); err == nil {
		info.OSName = hi.Platform
		info.OSVersion = hi.PlatformVersion
		info.Hostname = hi.Hostname
	}

	if cis, err := cpu.Info(); err == nil && len(cis) > 0 {
		info.CPUModel = cis[0].ModelName
	}
	if n, err := cpu.Counts(true); err == nil {
		info.CPUCount = n
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.RAMMiB = vm.Total / (1024 * 1024)
	}

	if temps, err := host.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			if t.Temperature > 0 {
				v := t.Temperature
				info.ThermalC = &v
				break
			}
		}
	}

	return info
}
