package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/sous-vide/internal/config"
	"github.com/sweeney/sous-vide/internal/control"
	"github.com/sweeney/sous-vide/internal/filestore"
	"github.com/sweeney/sous-vide/internal/gpio"
	"github.com/sweeney/sous-vide/internal/metrics"
	"github.com/sweeney/sous-vide/internal/mqtt"
	"github.com/sweeney/sous-vide/internal/pid"
	"github.com/sweeney/sous-vide/internal/schedule"
	"github.com/sweeney/sous-vide/internal/status"
	"github.com/sweeney/sous-vide/internal/watch"
	"github.com/sweeney/sous-vide/internal/web"
)

// RunCmd runs the controller until SIGINT or SIGTERM.
type RunCmd struct{}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	loadEnvFile(cli.EnvFile)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	d, err := newDaemon(context.Background(), cfg)
	if err != nil {
		return err
	}

	slog.Info("started",
		"window", cfg.Control.WindowSize,
		"alarm_interval", cfg.Control.AlarmInterval,
		"broker", cfg.MQTT.Broker,
		"http", cfg.HTTP.Addr)
	s := <-sigCh
	slog.Info("shutting down", "signal", s)
	d.close(signalName(s))
	return nil
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// AutotuneCmd runs the controller only for the duration of one autotune
// session and prints the derived gains.
type AutotuneCmd struct {
	Timeout time.Duration `help:"Give up after this long (0 waits forever)" default:"0"`
}

func (c *AutotuneCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	loadEnvFile(cli.EnvFile)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if c.Timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, c.Timeout)
		defer tcancel()
	}

	d, err := newDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close("AUTOTUNE")

	gains, err := d.ctrl.DoAutoTune(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("kp: %.4f\nki: %.4f\nkd: %.4f\n", gains.Kp, gains.Ki, gains.Kd)
	return nil
}

// daemon holds everything newDaemon wires together.
type daemon struct {
	cfg       config.Config
	ctrl      *control.Controller
	board     *gpio.RealBoard
	publisher *mqtt.RealPublisher
	scheduler *schedule.Gocron
	watcher   *watch.CommandWatcher
	server    *web.Server
	tracker   *status.Tracker
	cancel    context.CancelFunc
}

func newDaemon(parent context.Context, cfg config.Config) (_ *daemon, err error) {
	ctx, cancel := context.WithCancel(parent)
	d := &daemon{cfg: cfg, cancel: cancel}
	defer func() {
		if err != nil {
			d.close("STARTUP_FAILED")
		}
	}()

	d.tracker = status.NewTracker(time.Now(), status.Config{
		WindowMs:        cfg.Control.WindowSize.Milliseconds(),
		AlarmMs:         cfg.Control.AlarmInterval.Milliseconds(),
		CommandCheckMs:  cfg.Control.CommandCheckInterval.Milliseconds(),
		StatusFile:      cfg.Files.StatusPath(),
		Broker:          cfg.MQTT.Broker,
		HTTPAddr:        cfg.HTTP.Addr,
		WatchCommands:   cfg.WatchCommands,
		MaxTuneAttempts: cfg.Autotune.MaxAttempts,
	})
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}

	d.board, err = gpio.NewRealBoard(cfg.Hardware.Chip, gpio.Pins{
		Heater: cfg.Hardware.HeaterPin,
		Water:  cfg.Hardware.WaterSensorPin,
		Pump:   cfg.Hardware.PumpPin,
	})
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	var notifier control.Notifier
	if cfg.MQTT.Broker != "" {
		d.publisher, err = mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Topic:              cfg.MQTT.Topic,
			OnConnectionChange: d.tracker.SetMQTTConnected,
		})
		if err != nil {
			return nil, fmt.Errorf("init mqtt: %w", err)
		}
		notifier = d.publisher
		d.publishSystem("STARTUP", "")
	} else {
		slog.Info("mqtt disabled")
	}

	d.scheduler, err = schedule.NewGocron()
	if err != nil {
		return nil, err
	}

	var nudger control.Nudger
	if cfg.WatchCommands {
		d.watcher, err = watch.NewCommandWatcher(cfg.Files.SetpointFile, cfg.Files.StartPath(), cfg.Files.StopPath())
		if err != nil {
			// Polling still covers the command files.
			slog.Warn("command watch disabled", "error", err)
		} else {
			nudger = d.watcher
			go d.watcher.Run(ctx)
		}
	}

	var datalogDir string
	if cfg.Log.Datalog {
		datalogDir = cfg.Log.Dir
	}

	store := filestore.New()
	own := owner(cfg.Files)
	window := cfg.Control.WindowSize
	algo := pid.New(cfg.PID.Kp, cfg.PID.Ki, cfg.PID.Kd, window, 0, float64(window.Milliseconds()))

	statusWriter := status.NewWriter(store, cfg.Files.StatusPath(), own, d.tracker)
	slog.Info("status file", "path", statusWriter.Path())

	d.ctrl, err = control.New(control.Config{
		TemperatureFile:      cfg.Files.TemperatureFile,
		SetpointFile:         cfg.Files.SetpointFile,
		StartFile:            cfg.Files.StartPath(),
		StopFile:             cfg.Files.StopPath(),
		Owner:                own,
		WindowSize:           window,
		AlarmInterval:        cfg.Control.AlarmInterval,
		CommandCheckInterval: cfg.Control.CommandCheckInterval,
		SetpointBand:         cfg.Control.SetpointBand,
		Autotune: control.AutotuneConfig{
			NoiseBand:           cfg.Autotune.NoiseBand,
			OutputStep:          cfg.Autotune.OutputStep,
			Lookback:            cfg.Autotune.Lookback,
			StableTimeGoal:      cfg.Autotune.StableTimeGoal,
			StabilizationOutput: cfg.Autotune.StabilizationOutput,
			CheckInterval:       cfg.Autotune.CheckInterval,
			MaxAttempts:         cfg.Autotune.MaxAttempts,
			MaxDuration:         cfg.Autotune.MaxDuration,
		},
		DatalogDir: datalogDir,
	}, control.Deps{
		Algorithm: algo,
		Heater:    d.board.Heater(),
		Pump:      d.board.Pump(),
		Water:     d.board.Water(),
		Store:     store,
		Status:    statusWriter,
		Ticker:    d.scheduler,
		Tracker:   d.tracker,
		Notifier:  notifier,
		Metrics:   recorder,
		Nudger:    nudger,
	})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Files.StatusPath()), 0o755); err != nil {
		return nil, fmt.Errorf("create command dir: %w", err)
	}
	if err := d.ctrl.Init(); err != nil {
		return nil, fmt.Errorf("init controller: %w", err)
	}
	if err := d.ctrl.StartTicking(); err != nil {
		return nil, err
	}

	if cfg.HTTP.Addr != "" {
		d.server = web.New(cfg.HTTP.Addr, d.tracker, metrics.HTTPHandler(reg))
		go func() {
			if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
			}
		}()
		slog.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}
	return d, nil
}

// close tears everything down in reverse order. The controller leaves the
// heater and pump off before the GPIO lines are released.
func (d *daemon) close(reason string) {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
		cancel()
	}
	if d.ctrl != nil {
		if err := d.ctrl.Close(); err != nil {
			slog.Error("controller close", "error", err)
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Shutdown(); err != nil {
			slog.Warn("scheduler shutdown", "error", err)
		}
	}
	if d.watcher != nil {
		d.watcher.Close()
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.publisher != nil {
		d.publishSystem("SHUTDOWN", reason)
		d.publisher.Close()
	}
	if d.board != nil {
		if err := d.board.Close(); err != nil {
			slog.Warn("gpio close", "error", err)
		}
	}
}

func (d *daemon) publishSystem(event, reason string) {
	d.tracker.SetMQTTConnected(d.publisher.IsConnected())
	v := d.tracker.View()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  v.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(v, event, reason),
	})
	if err != nil {
		slog.Warn("publish system event failed", "event", event, "error", err)
		return
	}
	slog.Info("published system event", "event", event)
}
