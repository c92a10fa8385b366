// ABOUTME: Entry point for the dozenal clock
// ABOUTME: Parses flags over an optional TOML config and runs the clock loop with a TUI or logs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/internal/app"
	"github.com/Dozenal-Clock/dozclock-go/internal/chime"
	"github.com/Dozenal-Clock/dozclock-go/internal/config"
	"github.com/Dozenal-Clock/dozclock-go/internal/display"
	"github.com/Dozenal-Clock/dozclock-go/internal/logging"
	"github.com/Dozenal-Clock/dozclock-go/internal/ui"
	"github.com/Dozenal-Clock/dozclock-go/internal/version"
	"github.com/Dozenal-Clock/dozclock-go/pkg/clock"
	"github.com/Dozenal-Clock/dozclock-go/pkg/dozenal"
	"github.com/Dozenal-Clock/dozclock-go/pkg/timesource"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	configFile  = flag.String("config", "", "TOML config file")
	precision   = flag.Int("precision", 3, "Dozenal digits after the radix point (0-4)")
	authority   = flag.String("authority", config.AuthoritySystem, "Time authority: system, remote or mdns")
	serverAddr  = flag.String("server", "", "Time server address for -authority remote")
	glyphs      = flag.String("glyphs", "pitman", "Digit glyphs for ten and eleven: pitman or ascii")
	timezone    = flag.String("tz", "", "IANA time zone (default: host zone)")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	logFile     = flag.String("log-file", "dozclock.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	chimeOn     = flag.Bool("chime", false, "Chime when the dozenal digit at -chime-precision rolls over")
	chimeFile   = flag.String("chime-file", "", "MP3 file to play as the chime (default: sine tone)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	useTUI := !cfg.NoTUI
	var console io.Writer
	if !useTUI {
		console = os.Stderr
	}
	logger, closeLog, err := logging.New(logging.Options{File: cfg.LogFile, Console: console, Debug: cfg.Debug})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = closeLog() }()

	if err := run(cfg, useTUI, logger); err != nil {
		logger.Error("clock stopped", zap.Error(err))
		_ = closeLog()
		os.Exit(1)
	}
}

// loadConfig reads the config file, then applies only the flags given on the command line.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "precision":
			cfg.Precision = *precision
		case "authority":
			cfg.Authority = *authority
		case "server":
			cfg.ServerAddress = *serverAddr
			if cfg.Authority == config.AuthoritySystem {
				cfg.Authority = config.AuthorityRemote
			}
		case "glyphs":
			cfg.Glyphs = *glyphs
		case "tz":
			cfg.Timezone = *timezone
		case "metrics":
			cfg.MetricsAddress = *metricsAddr
		case "log-file":
			cfg.LogFile = *logFile
		case "no-tui":
			cfg.NoTUI = *noTUI
		case "debug":
			cfg.Debug = *debug
		case "chime":
			cfg.Chime.Enabled = *chimeOn
		case "chime-file":
			cfg.Chime.File = *chimeFile
		}
	})

	return cfg, cfg.Validate()
}

func run(cfg config.Config, useTUI bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting clock",
		zap.String("version", version.Version),
		zap.String("authority", cfg.Authority),
		zap.Int("precision", cfg.Precision))

	registry := prometheus.NewRegistry()
	if cfg.MetricsAddress != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	glyphSet, _ := dozenal.ParseGlyphs(cfg.Glyphs)
	loc, _ := cfg.Location()

	deps := app.Deps{
		Authority: newAuthority(cfg, logger),
		Coarse:    clock.NewHostClock(),
		Mono:      clock.NewMonotonic(),
	}

	if cfg.Chime.Enabled {
		player, err := newChime(cfg.Chime, logger)
		if err != nil {
			return err
		}
		deps.Chime = player
		deps.ChimePrecision = cfg.Chime.Precision
	}

	var prog *tea.Program
	if useTUI {
		deps.Controls = ui.NewControls()
		prog = ui.Run(deps.Controls, display.Colors, cfg.Precision)
		deps.Display = display.NewTUI(prog)
		deps.Status = func(msg ui.StatusMsg) { prog.Send(msg) }
	} else {
		deps.Display = display.NewLog(logger)
	}

	clk, err := app.New(app.Config{
		Precision:     cfg.Precision,
		PollInterval:  cfg.PollInterval.Duration,
		ResyncAfter:   cfg.ResyncAfter.Duration,
		ResyncTimeout: cfg.ResyncTimeout.Duration,
		CalibrateHold: 2 * time.Second,
		Glyphs:        glyphSet,
		Location:      loc,
		Registry:      registry,
	}, deps, logger)
	if err != nil {
		return err
	}

	if prog == nil {
		return clk.Run(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- clk.Run(runCtx) }()
	go func() {
		<-ctx.Done()
		prog.Quit()
	}()

	_, tuiErr := prog.Run()
	cancel()
	if err := <-done; err != nil {
		return err
	}
	return tuiErr
}

func newAuthority(cfg config.Config, logger *zap.Logger) timesource.Authority {
	remote := timesource.RemoteConfig{
		Addr:    cfg.ServerAddress,
		Samples: cfg.SyncSamples,
	}
	switch cfg.Authority {
	case config.AuthorityRemote:
		return timesource.NewRemote(remote, logger)
	case config.AuthorityMDNS:
		return timesource.NewDiscovered(remote, 0, logger)
	default:
		return timesource.System{}
	}
}

func newChime(c config.Chime, logger *zap.Logger) (chime.Player, error) {
	if c.File != "" {
		return chime.NewMP3File(c.File, c.Volume, logger)
	}
	return chime.NewTone(c.Frequency, c.Length.Duration, c.Volume, logger), nil
}
