// Command cortex-adapter hosts the built-in kernel registry over a
// single transport connection, serving one harness session until the
// transport closes.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/WestonVoglesonger/cortex/internal/adapter"
	"github.com/WestonVoglesonger/cortex/internal/kernelreg"
	"github.com/WestonVoglesonger/cortex/internal/logging"
	"github.com/WestonVoglesonger/cortex/internal/transport"
)

func main() {
	var (
		transportURI = flag.String("transport", "", "transport URI to serve on (local:// when empty)")
		verbose      = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	uri, err := transport.ParseURI(*transportURI)
	if err != nil {
		logger.Error("invalid transport uri", "error", err)
		os.Exit(1)
	}

	tr, err := openAdapterTransport(uri)
	if err != nil {
		logger.Error("failed to open transport", "error", err)
		os.Exit(1)
	}
	defer tr.Close()

	registry := kernelreg.NewRegistry()
	hostname, _ := os.Hostname()

	sess := adapter.NewSession(tr, registry, adapter.Identity{
		AdapterName:      "cortex-adapter",
		Hostname:         hostname,
		CPUDesc:          runtime.GOARCH,
		OSDesc:           runtime.GOOS,
		MaxWindowSamples: 1 << 20,
		MaxChannels:      4096,
	})

	logger.Info("adapter session starting", "kernels", registry.Names())
	if err := sess.Run(); err != nil {
		logger.Error("adapter session ended with error", "error", err)
		os.Exit(1)
	}
	logger.Info("adapter session ended cleanly")
}

func openAdapterTransport(uri transport.URI) (transport.Transport, error) {
	switch uri.Scheme {
	case "", "local":
		return transport.NewLocalAdapterPair()
	case "tcp":
		return transport.NewTCPServer(uri)
	case "serial":
		return transport.NewSerialTransport(uri)
	case "shm":
		return transport.NewSharedMemoryAdapter(uri)
	default:
		return nil, fmt.Errorf("unknown transport scheme %q", uri.Scheme)
	}
}
