package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/algo-boyz/earshot/pkg/audio"
	"github.com/algo-boyz/earshot/pkg/command"
	"github.com/algo-boyz/earshot/pkg/config"
	"github.com/algo-boyz/earshot/pkg/onnx"
	"github.com/algo-boyz/earshot/pkg/state"
)

var (
	ctx         = state.NewContext()
	configPath  string
	deviceIndex int
	mode        string
	listDevices bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "path to the YAML configuration file (defaults apply when empty)")
	flag.IntVar(&deviceIndex, "device", -1, "input device index (-1 for the default device)")
	flag.StringVar(&mode, "mode", "", "override configured mode: wakeword, continuous or manual")
	flag.BoolVar(&listDevices, "devices", false, "list input devices and exit")
}

func main() {
	flag.Parse()
	if listDevices {
		names, err := audio.ListDevices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
			os.Exit(1)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}
	go func() {
		if err := run(ctx); err != nil {
			slog.Error("earshot exiting", "err", err)
			os.Exit(1)
		}
		ctx.Exit()
	}()
	ctx.AwaitExit()
}

func run(ctx state.Context) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if deviceIndex >= 0 {
		cfg.Capture.DeviceIndex = deviceIndex
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	setupLogger(cfg.LogLevel)
	slog.Info("earshot starting",
		"mode", cfg.Mode,
		"sample_rate", cfg.Capture.SampleRate,
		"pre_buffer_seconds", cfg.Capture.PreBufferSeconds,
	)

	if cfg.Mode != config.ModeManual && cfg.Model.RuntimePath == "" {
		if err := onnx.FetchRuntime(); err != nil {
			return fmt.Errorf("path to onnx runtime is required: %w", err)
		}
		cfg.Model.RuntimePath = onnx.LibPath()
	}

	mic, err := audio.NewMicStream(ctx, cfg.Capture.SampleRate, cfg.Capture.FrameSize, cfg.Capture.DeviceIndex)
	if err != nil {
		return fmt.Errorf("failed to create mic stream: %w", err)
	}
	engine, err := NewEngine(ctx, cfg, Deps{Source: mic})
	if err != nil {
		return err
	}
	if err = mic.Start(); err != nil {
		return err
	}

	// Daemon listener: it blocks on stdin and only ever sets signal flags,
	// so it is left to die with the process.
	go func() {
		if err := command.Listen(ctx, os.Stdin, engine.Signals()); err != nil {
			slog.Warn("command listener stopped", "err", err)
		}
	}()

	return engine.Listen()
}

// setupLogger routes structured logs to stderr; stdout carries the event
// protocol and nothing else.
func setupLogger(level config.LogLevel) {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
