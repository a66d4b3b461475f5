package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/WILLJB02/Networked-Threaded-Chat-System/pkg/server"
)

const (
	exitUsage = 1
	exitComms = 2
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func usageError() {
	fmt.Fprintln(os.Stderr, "Usage: server authfile [port]")
	os.Exit(exitUsage)
}

func commsError(err error) {
	log.Printf("fatal: %v", err)
	fmt.Fprintln(os.Stderr, "Communications error")
	os.Exit(exitComms)
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	configPath := flag.String("config", "chat-server.toml", "Path to config file")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config; 0 = ephemeral)")
	wsPort := flag.Int("ws-port", 0, "WebSocket port (overrides config; 0 = disabled)")
	metricsPort := flag.Int("metrics-port", 0, "Prometheus metrics port (overrides config; 0 = disabled)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("Chat server %s\n", Version)
		os.Exit(0)
	}

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		usageError()
	}
	serverConfig := config.ToServerConfig()

	// Flags override config, positional arguments override both. The
	// positional form is `server authfile [port]`.
	if *port != 0 {
		serverConfig.TCPPort = *port
	}
	if *wsPort != 0 {
		serverConfig.WSPort = *wsPort
	}
	if *metricsPort != 0 {
		serverConfig.MetricsPort = *metricsPort
	}

	args := flag.Args()
	switch len(args) {
	case 0:
	case 2:
		p := 0
		if _, err := fmt.Sscanf(args[1], "%d", &p); err != nil {
			usageError()
		}
		serverConfig.TCPPort = p
		fallthrough
	case 1:
		serverConfig.AuthFile = args[0]
	default:
		usageError()
	}

	if serverConfig.AuthFile == "" {
		usageError()
	}

	srv, err := server.NewServer(serverConfig)
	if err != nil {
		log.Printf("Failed to create server: %v", err)
		usageError()
	}

	if *debug {
		server.EnableDebugLogging()
		log.Printf("Debug logging enabled")
	}

	if err := srv.Start(); err != nil {
		commsError(err)
	}

	// The statistics reporter blocks on SIGHUP and writes to stderr.
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	trigger := make(chan struct{}, 1)
	reporterStop := make(chan struct{})
	go func() {
		for range hupChan {
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}()
	go server.NewReporter(srv.Registry(), os.Stderr).Run(trigger, reporterStop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srv.Err():
		commsError(err)
	case <-sigChan:
	}

	log.Println("Shutting down server...")
	close(reporterStop)
	if err := srv.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped")
}
