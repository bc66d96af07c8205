// Command smartlog captures microphone audio and transcribes it live,
// switching between a light (vosk) and heavy (whisper) backend based on
// system load.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/smartlog-ai/smartlog/internal/audio"
	"github.com/smartlog-ai/smartlog/internal/config"
	"github.com/smartlog-ai/smartlog/internal/models"
	"github.com/smartlog-ai/smartlog/internal/monitor"
	"github.com/smartlog-ai/smartlog/internal/stt"
)

// pollInterval is how long the consumer loop sleeps when no chunk is ready.
const pollInterval = 10 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/smartlog/config.yaml)")
	downloadModels := flag.Bool("download-models", false, "download the vosk and whisper models, then exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	if *downloadModels {
		if err := models.DownloadAll(config.DefaultModelsDir()); err != nil {
			log.Fatalf("model download: %v", err)
		}
		return
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	defaultBackend, err := stt.ParseBackendID(cfg.Engine.DefaultBackend)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	engine := stt.NewEngine(stt.EngineConfig{
		SampleRate:     cfg.Audio.SampleRate,
		LightModelPath: cfg.Engine.LightModelPath,
		HeavyModelPath: cfg.Engine.HeavyModelPath,
		WindowSeconds:  cfg.Engine.WindowSeconds,
		Selector: stt.SelectorConfig{
			Default:       defaultBackend,
			CPUThreshold:  cfg.Engine.CPUThreshold,
			MemThreshold:  cfg.Engine.MemThreshold,
			Hysteresis:    cfg.Engine.HysteresisMargin,
			Cooldown:      cfg.Engine.Cooldown(),
			CheckEvery:    cfg.Engine.CheckEvery,
			CheckInterval: cfg.Engine.CheckIntervalDuration(),
			TempThreshold: cfg.Engine.TempThreshold,
		},
	}, monitor.New(logger), logger)
	defer engine.Close()

	device, err := audio.NewMalgoDevice()
	if err != nil {
		log.Fatalf("audio device: %v\n\nEnsure a microphone is connected and accessible.", err)
	}
	defer device.Close()

	capturer := audio.NewCapturer(device, audio.Config{
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		FrameSize:      cfg.Audio.FrameSize,
		BufferDuration: cfg.Audio.RingDuration(),
	}, logger)

	if cfg.Audio.DumpPath != "" {
		dump, err := audio.NewWavDump(cfg.Audio.DumpPath, cfg.Audio.SampleRate, cfg.Audio.Channels)
		if err != nil {
			logger.Warn("audio dump disabled", "path", cfg.Audio.DumpPath, "error", err)
		} else {
			capturer.SetSink(dump)
			defer dump.Close()
		}
	}

	if err := capturer.Start(); err != nil {
		log.Fatalf("audio capture: %v", err)
	}
	defer capturer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("transcription started", "backend", engine.ActiveBackend().String())
	fmt.Println("Listening. Ctrl+C to stop.")

	var lastPartial string
	for {
		select {
		case <-sigCh:
			capturer.Stop()
			if final := engine.FinalResult(); final != "" {
				printSegment(final)
			}
			logger.Info("shutting down")
			return
		default:
		}

		chunk := capturer.GetChunk()
		if chunk == nil {
			time.Sleep(pollInterval)
			continue
		}

		text := engine.Transcribe(chunk)
		if text == "" {
			continue
		}

		// Streaming backends repeat the growing partial for every chunk;
		// only print when it changes, and promote to its own line once the
		// segment settles.
		if text == lastPartial {
			continue
		}
		lastPartial = text
		printSegment(text)
	}
}

// printSegment writes one recognized segment to stdout.
func printSegment(text string) {
	fmt.Printf("> %s\n", strings.TrimSpace(text))
}

// loadConfig loads from the given path, or from the default location,
// falling back to defaults when no file exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		return config.Load(defaultPath)
	}
	return config.Default(), nil
}

// newLogger builds the process-wide slog handler at the configured level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
