package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/omnode/omnode/internal/config"
	"github.com/omnode/omnode/internal/termcolor"
	"github.com/omnode/omnode/internal/watchdog"
	"github.com/omnode/omnode/pkg/omnode"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o omnode ./cmd/omnode
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	fs := flag.NewFlagSet("omnode", flag.ExitOnError)
	debug := fs.Bool("debug", false, "enable debug-level logging")
	configFlag := fs.String("config", "", "path to a YAML config file")
	metricsAddr := fs.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. 127.0.0.1:9091)")
	showVersion := fs.Bool("version", false, "print version information and exit")
	fs.Parse(os.Args[1:])

	if *showVersion {
		printVersion()
		return
	}

	peerPort := config.CanonicalPeerPort
	if fs.NArg() > 0 {
		p, err := parsePort(fs.Arg(0))
		if err != nil {
			fatal("invalid peer port %q: %v", fs.Arg(0), err)
		}
		peerPort = p
		fs.Parse(fs.Args()[1:])
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load(*configFlag, peerPort)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	cfg.Debug = *debug
	if *metricsAddr != "" {
		cfg.Telemetry.Metrics.Enabled = true
		cfg.Telemetry.Metrics.ListenAddress = *metricsAddr
	}

	termcolor.Green("omnode %s (%s) starting on peer port %d", version, commit, cfg.Network.PeerPort)

	node, err := omnode.New(cfg, fmt.Sprintf("node-%d", cfg.Network.PeerPort), log, version, runtime.Version())
	if err != nil {
		fatal("failed to start node: %v", err)
	}

	peerAddr, adminAddr := node.Addr()
	fmt.Printf("peer socket:  %s\n", peerAddr)
	fmt.Printf("admin socket: %s\n", adminAddr)
	fmt.Printf("identity:     %s\n", node.SelfKey())
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Metrics.Enabled {
		startMetricsServer(cfg.Telemetry.Metrics.ListenAddress, node, log)
	}

	runDone := make(chan struct{})
	go func() {
		node.Run(ctx)
		close(runDone)
	}()

	watchdog.Ready()
	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	go watchdog.Run(watchdogCtx, watchdog.Config{}, []watchdog.HealthCheck{
		{
			Name: "admin-listener",
			Check: func() error {
				if _, ok := adminAddr.(*net.TCPAddr); !ok {
					return fmt.Errorf("admin listener not bound")
				}
				return nil
			},
		},
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("\nreceived %s, shutting down...\n", sig)
	case <-ctx.Done():
	}

	watchdog.Stopping()
	cancel()
	<-runDone
	termcolor.Green("omnode stopped.")
}

func startMetricsServer(addr string, node *omnode.Node, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", node.Metrics().Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	fmt.Printf("metrics:      http://%s/metrics\n", addr)
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	if err != nil {
		return 0, err
	}
	if p < 0 || p > 65535 {
		return 0, fmt.Errorf("out of range: %d", p)
	}
	return p, nil
}

func fatal(format string, a ...any) {
	termcolor.Red(format, a...)
	os.Exit(1)
}

func printVersion() {
	fmt.Printf("omnode %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
