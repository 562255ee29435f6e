package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"tuner/cmd"
	"tuner/internal/audio"
	"tuner/internal/config"
	applog "tuner/internal/log"
	"tuner/internal/observe"
	"tuner/internal/transport"
	"tuner/internal/transport/udp"
	"tuner/internal/tui"
	"tuner/internal/tuner"
	"tuner/pkg/build"

	"golang.org/x/sync/errgroup"
)

// main is the entry point for the tuner.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands (device listing, file analysis)
//   - Initialize PortAudio and build the analysis pipeline
//
// 2. Concurrent Phase (Hot Path):
//   - Capture frames in the PortAudio callback
//   - Analyse them in the tuner loop
//   - Feed the gauge, WebSocket, UDP and metrics collaborators
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or the gauge quitting
//   - Stop the input stream, then release the exchange
//   - Close transports and flush metrics
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}

	// One thread for the analysis loop, one for UI and I/O. The capture
	// callback runs on a PortAudio thread outside the Go scheduler.
	runtime.GOMAXPROCS(2)

	inv, err := cmd.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if inv.Command == "" {
		return // --help or --version
	}
	applog.SetLevel(inv.Config.Level())

	if err := run(inv); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run(inv *cmd.Invocation) error {
	cfg := inv.Config

	// Handle one-off commands that don't need PortAudio
	if inv.Command == cmd.CommandAnalyze {
		clip, err := audio.LoadWAV(inv.File)
		if err != nil {
			return err
		}
		summary, err := cmd.Analyze(os.Stdout, clip, cfg)
		if err != nil {
			return err
		}
		applog.Infof("Analysed %d frames: %v", summary.Frames, summary.ByStatus)
		return nil
	}

	// File replay needs no device either.
	needDevice := inv.Command == cmd.CommandList || cfg.Audio.InputFile == ""
	if needDevice {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
	}

	if inv.Command == cmd.CommandList {
		if !inv.Interactive {
			return audio.ListDevices(os.Stdout)
		}
		sel, ok, err := tui.StartDeviceListUI()
		if err != nil || !ok {
			return err
		}
		cfg.Audio.InputDevice = sel.Device.ID
		cfg.Audio.SampleRate = sel.SampleRate
		cfg.Audio.InputFile = ""
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("settings for %s: %w", sel.Device.Name, err)
		}
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	return tune(sigCtx, cfg)
}

// statsSource is implemented by both capture sources.
type statsSource interface {
	tuner.Source
	Stats() audio.Stats
}

func openSource(cfg *config.Config) (statsSource, error) {
	if cfg.Audio.InputFile == "" {
		return audio.NewCapture(cfg.Capture())
	}

	clip, err := audio.LoadWAV(cfg.Audio.InputFile)
	if err != nil {
		return nil, err
	}
	if clip.SampleRate != cfg.Audio.SampleRate {
		applog.Infof("Using the file's sample rate of %g Hz", clip.SampleRate)
		cfg.Audio.SampleRate = clip.SampleRate
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("settings for %s: %w", cfg.Audio.InputFile, err)
		}
	}
	return audio.NewFileSource(clip, cfg.Audio.BufferSize)
}

func tune(parent context.Context, cfg *config.Config) error {
	source, err := openSource(cfg)
	if err != nil {
		return err
	}
	pipeline, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	opts := []tuner.Option{}
	var closers []io.Closer

	if cfg.Transport.LogReadings || !cfg.UI.Enabled {
		lt := transport.NewLoggingTransport()
		opts = append(opts, tuner.WithTransports(lt))
		closers = append(closers, lt)
	}

	mux := http.NewServeMux()
	serveHTTP := false

	if cfg.Transport.WebSocketEnabled {
		wst := transport.NewWebSocketTransport()
		mux.Handle("/ws", wst.Handler())
		opts = append(opts, tuner.WithTransports(wst))
		closers = append(closers, wst)
		serveHTTP = true
	}

	var metrics *observe.Metrics
	if cfg.Metrics.Enabled {
		provider, err := observe.NewProvider(observe.ProviderConfig{
			ServiceName:    build.GetBuildFlags().Name,
			ServiceVersion: build.GetBuildFlags().Version,
		})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := provider.Shutdown(ctx); err != nil {
				applog.Warnf("Metrics shutdown: %v", err)
			}
		}()
		if metrics, err = observe.NewMetrics(provider.MeterProvider); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		mux.Handle("/metrics", provider.Handler())
		opts = append(opts, tuner.WithRecorder(metrics))
		serveHTTP = true
	}

	t, err := tuner.New(cfg.Session(), pipeline, source, opts...)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				applog.Warnf("Close: %v", err)
			}
		}
	}()

	if metrics != nil {
		if err := metrics.ObserveExchange(t.Exchange().Stats); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		if err := metrics.ObserveCapture(source.Stats); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// The gauge owns the terminal, so logs must go elsewhere while it runs.
	if cfg.UI.Enabled {
		restore, err := redirectLogs(cfg.Debug)
		if err != nil {
			return err
		}
		defer restore()
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A finished file replay ends the session.
		defer cancel()
		return t.Run(gctx)
	})

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, t.Display())
		if err != nil {
			sender.Close()
			cancel()
			_ = g.Wait()
			return err
		}
		publisher.Start()
		g.Go(func() error {
			<-gctx.Done()
			publisher.Stop()
			return sender.Close()
		})
	}

	if serveHTTP {
		srv := transport.NewHTTPServer(cfg.Transport.HTTPAddress, mux)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if cfg.UI.Enabled {
		g.Go(func() error {
			// Quitting the gauge ends the session.
			defer cancel()
			return tui.RunGauge(gctx, t.Display(), cfg.UI.RefreshInterval)
		})
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if r, ok := t.Display().Load(); ok {
		applog.Infof("Last reading: %s", r)
	}
	return err
}

// redirectLogs sends log output to tuner.log in debug mode and drops it
// otherwise. The returned func restores stderr.
func redirectLogs(debug bool) (func(), error) {
	if !debug {
		applog.SetOutput(io.Discard)
		return func() { applog.SetOutput(os.Stderr) }, nil
	}
	f, err := os.OpenFile("tuner.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	applog.SetOutput(f)
	return func() {
		applog.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
