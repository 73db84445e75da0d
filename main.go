package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"signdetect/internal/config"
	"signdetect/internal/detlog"
	"signdetect/internal/labels"
	"signdetect/internal/logging"
	"signdetect/internal/session"
	ui "signdetect/internal/ui"
	"signdetect/processing/capture"
	"signdetect/processing/detector"
	"signdetect/processing/detector/onnx"
	"signdetect/processing/pipeline"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the TOML config file")
	flag.Parse()

	exeDir, exeErr := config.ExecutableDir()
	cfgPath := config.Locate(*configPath, exeDir)

	cfg, cfgErr := config.LoadConfigFile(cfgPath)
	// relative model, label and log paths are anchored where the config lives
	cfg.ResolvePaths(filepath.Dir(cfgPath))

	logger := logging.New(os.Stdout, cfg.Logging.Level)
	if exeErr != nil {
		logger.Warn("Executable location unknown, using working directory", "error", exeErr)
	}
	if cfgErr != nil {
		logger.Warn("Config not loaded, using defaults", "path", cfgPath, "error", cfgErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	names := labels.NewStore(labels.Default())
	if path := cfg.LabelsPath(); path != "" {
		if err := names.Reload(path); err != nil {
			logger.Warn("Label file not loaded, using built-in classes", "path", path, "error", err)
		} else if err := names.Watch(ctx, path, logger.With("component", "labels")); err != nil {
			logger.Warn("Label hot reload disabled", "error", err)
		}
	}

	det, err := newDetector(cfg, logger)
	if err != nil {
		logger.Error("Can't load detector", "backend", cfg.Detector.Backend, "error", err)
		os.Exit(1)
	}
	defer det.Close()

	rec, err := detlog.Open(cfg.LogPath())
	if err != nil {
		logger.Error("Can't open detection log", "error", err)
		os.Exit(1)
	}
	defer rec.Close()

	proc := pipeline.New(det, names, rec, logger)
	proc.SetMinConfidence(float64(cfg.GetConfidence()))

	state := session.New(session.ParseTheme(cfg.GetTheme()))

	factory := func(source capture.SourceType, target string) (capture.VideoStreamer, error) {
		return capture.NewStreamer(cfg, source, target)
	}

	app := ui.CreateApp(cfg, cfgPath, state, proc, factory, logger)

	logger.Info("Starting", "model", cfg.ModelPath(), "backend", cfg.Detector.Backend, "log", rec.Path())
	app.Run()

	logger.Info("Stopped", "rows logged", rec.Rows())
}

func newDetector(cfg *config.Config, logger *slog.Logger) (detector.Detector, error) {
	if cfg.Detector.Backend == config.BackendRemote {
		timeout := time.Duration(cfg.Detector.TimeoutMs) * time.Millisecond
		return detector.NewRemoteDetector(cfg.Detector.RemoteURL, timeout, logger), nil
	}

	d, err := onnx.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}
