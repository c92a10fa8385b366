// ABOUTME: Entry point for the dozclock time server
// ABOUTME: Parses CLI flags and serves time exchanges to clocks on the local network
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dozenal-Clock/dozclock-go/internal/logging"
	"github.com/Dozenal-Clock/dozclock-go/pkg/timeserver"
	"go.uber.org/zap"
)

var (
	port    = flag.Int("port", timeserver.DefaultPort, "WebSocket server port")
	name    = flag.String("name", "", "Server friendly name (default: hostname-dozclock-time)")
	logFile = flag.String("log-file", "dozclock-timeserver.log", "Log file path")
	debug   = flag.Bool("debug", false, "Enable debug logging")
	noMDNS  = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	// Log to both file and console
	logger, closeLog, err := logging.New(logging.Options{File: *logFile, Console: os.Stdout, Debug: *debug})
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = closeLog() }()

	// Determine server name
	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-dozclock-time", hostname)
	}

	logger.Info("starting time server",
		zap.String("name", serverName),
		zap.Int("port", *port),
		zap.String("log_file", *logFile))

	srv, err := timeserver.NewServer(timeserver.Config{
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
	}, logger)
	if err != nil {
		logger.Fatal("invalid server config", zap.Error(err))
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down gracefully", zap.String("signal", sig.String()))
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}
