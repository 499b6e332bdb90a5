// Command cortex runs a benchmark: it loads a YAML run descriptor,
// spawns one device session per ready plugin, replays the configured
// dataset through a scheduler, and writes per-window telemetry.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"

	"github.com/WestonVoglesonger/cortex/internal/calibration"
	"github.com/WestonVoglesonger/cortex/internal/config"
	"github.com/WestonVoglesonger/cortex/internal/devsession"
	"github.com/WestonVoglesonger/cortex/internal/logging"
	"github.com/WestonVoglesonger/cortex/internal/obsmetrics"
	"github.com/WestonVoglesonger/cortex/internal/replayer"
	"github.com/WestonVoglesonger/cortex/internal/scheduler"
	"github.com/WestonVoglesonger/cortex/internal/telemetry"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s run <config-path>\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() < 2 || flag.Arg(0) != "run" {
		flag.Usage()
		os.Exit(1)
	}
	configPath := flag.Arg(1)

	verbose := os.Getenv("CORTEX_VERBOSE") != ""
	logConfig := logging.DefaultConfig()
	if verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	installStackDumpHandler(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := run(ctx, logger, configPath); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run(ctx context.Context, logger *logging.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := xid.New().String()
	logger = logger.WithRun(runID)
	logger.Info("starting run", "plugins", len(cfg.Plugins))

	reg := prometheus.NewRegistry()
	obs := obsmetrics.NewMetrics(reg)
	startMetricsServer(logger, reg)

	if err := os.MkdirAll(cfg.Output.Directory, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// One buffer for the whole run: it outlives every per-plugin
	// scheduler so the cumulative telemetry file covers all plugins.
	runBuf := telemetry.NewBuffer(1024)

	for _, plugin := range cfg.Plugins {
		if plugin.Status != "ready" {
			logger.Info("skipping draft plugin", "plugin", plugin.Name)
			continue
		}
		if err := runPlugin(ctx, logger, runID, *cfg, plugin, obs, runBuf); err != nil {
			logger.Error("plugin run failed", "plugin", plugin.Name, "error", err)
			return err
		}
	}

	info := telemetry.CollectSystemInfo()
	switch cfg.Output.Format {
	case "csv":
		return telemetry.WriteFullCSV(filepath.Join(cfg.Output.Directory, "telemetry.csv"), info, runBuf)
	default:
		return telemetry.WriteFullNDJSON(filepath.Join(cfg.Output.Directory, "telemetry.ndjson"), info, runBuf)
	}
}

func runPlugin(ctx context.Context, logger *logging.Logger, runID string, cfg config.Config, plugin config.Plugin, obs *obsmetrics.Metrics, runBuf *telemetry.Buffer) error {
	logger = logger.WithPlugin(plugin.Name)
	var cal []byte
	if plugin.CalibrationPath != "" {
		f, err := calibration.Read(plugin.CalibrationPath)
		if err != nil {
			return fmt.Errorf("read calibration: %w", err)
		}
		cal = f.Payload
	}

	handle, err := devsession.DeviceInit(devsession.InitParams{
		AdapterPath:  plugin.AdapterPath,
		TransportURI: plugin.TransportURI,
		PluginName:   plugin.Name,
		PluginParams: plugin.KernelParams,
		Fs:           cfg.Dataset.SampleRateHz,
		W:            plugin.Runtime.W,
		H:            plugin.Runtime.H,
		C:            plugin.Runtime.C,
		Calibration:  cal,
	})
	if err != nil {
		return fmt.Errorf("device_init: %w", err)
	}
	defer devsession.DeviceTeardown(handle)

	outSamples, outChannels := handle.OutputDims()
	pluginStart := runBuf.Len()

	for repeat := 0; repeat < maxInt(cfg.Benchmark.Repeats, 1); repeat++ {
		sched, err := scheduler.New(scheduler.Config{
			Fs:            cfg.Dataset.SampleRateHz,
			W:             plugin.Runtime.W,
			H:             plugin.Runtime.H,
			C:             plugin.Runtime.C,
			WarmupSeconds: cfg.Benchmark.WarmupSeconds,
			RunID:         runID,
		}, []scheduler.Device{{
			Handle:      handle,
			PluginName:  plugin.Name,
			AdapterName: handle.Identity().Hostname,
			OutBuf:      make([]float32, outSamples*outChannels),
		}}, runBuf)
		if err != nil {
			return fmt.Errorf("scheduler_new: %w", err)
		}
		sched.SetObsMetrics(obs)
		sched.SetRepeatIndex(repeat)

		if err := replayOnce(ctx, cfg, plugin, sched); err != nil {
			return fmt.Errorf("repeat %d: %w", repeat, err)
		}
		logger.Info("repeat complete", "repeat", repeat)
	}

	return writePluginTelemetry(cfg, plugin, runBuf, pluginStart)
}

func replayOnce(ctx context.Context, cfg config.Config, plugin config.Plugin, sched *scheduler.Scheduler) error {
	chunkSamples := plugin.Runtime.H
	if chunkSamples == 0 {
		chunkSamples = 1
	}
	rep, f, err := replayer.New(replayer.Config{
		Path:         cfg.Dataset.Path,
		Channels:     cfg.Dataset.Channels,
		SampleRateHz: cfg.Dataset.SampleRateHz,
		ChunkSamples: chunkSamples,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if cfg.Benchmark.DurationSeconds > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, time.Duration(cfg.Benchmark.DurationSeconds*float64(time.Second)))
		defer timeoutCancel()
	}
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rep.Run(runCtx, f) }()

	for chunk := range rep.Chunks {
		if err := sched.FeedSamples(chunk); err != nil {
			cancel()
			<-done
			return err
		}
	}
	if err := <-done; err != nil {
		return err
	}
	return sched.Flush()
}

// writePluginTelemetry writes the records appended to runBuf since
// pluginStart to kernel-data/<plugin>/telemetry.{csv|ndjson}, leaving
// runBuf itself untouched for the run's cumulative file.
func writePluginTelemetry(cfg config.Config, plugin config.Plugin, runBuf *telemetry.Buffer, pluginStart int) error {
	records, err := runBuf.Range(pluginStart, runBuf.Len())
	if err != nil {
		return err
	}
	dir := filepath.Join(cfg.Output.Directory, "kernel-data", plugin.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plugin telemetry dir: %w", err)
	}
	info := telemetry.CollectSystemInfo()
	switch cfg.Output.Format {
	case "csv":
		return telemetry.WriteCSV(filepath.Join(dir, "telemetry.csv"), info, records)
	default:
		return telemetry.WriteNDJSON(filepath.Join(dir, "telemetry.ndjson"), info, records)
	}
}

func startMetricsServer(logger *logging.Logger, reg *prometheus.Registry) {
	addr := os.Getenv("CORTEX_METRICS_ADDR")
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server exited", "error", err)
		}
	}()
	logger.Info("metrics server listening", "addr", addr)
}

func installStackDumpHandler(logger *logging.Logger) {
	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
