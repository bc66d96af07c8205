package stt

import (
	"log/slog"

	"github.com/smartlog-ai/smartlog/internal/monitor"
)

// EngineConfig configures the hybrid engine and its backends.
type EngineConfig struct {
	SampleRate     int
	LightModelPath string  // vosk model directory
	HeavyModelPath string  // whisper ggml model file
	WindowSeconds  float64 // heavy backend transcription window
	Selector       SelectorConfig
}

// Engine is the façade the consumer loop calls per chunk. It delegates to
// whichever backend the selector currently holds active and keeps the loop
// alive through per-chunk and per-backend failures.
//
// Like the Selector it wraps, Engine is single-consumer: one goroutine
// calls Transcribe/FinalResult/Close.
type Engine struct {
	sel *Selector
	log *slog.Logger
}

// NewEngine builds the light and heavy backends and the selector over them.
// Backends are loaded lazily; construction never touches a model file.
func NewEngine(cfg EngineConfig, sampler monitor.Sampler, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	light := NewVoskBackend(cfg.LightModelPath, cfg.SampleRate, logger)
	heavy := NewWhisperBackend(cfg.HeavyModelPath, cfg.SampleRate, cfg.WindowSeconds, logger)

	return &Engine{
		sel: NewSelector(cfg.Selector, light, heavy, sampler, logger),
		log: logger,
	}
}

// Transcribe runs the switch check, then feeds the chunk to the active
// backend. A failing chunk is logged and yields ""; it never stops the
// consumer loop.
func (e *Engine) Transcribe(chunk []byte) string {
	e.sel.CheckAndMaybeSwitch()

	backend, err := e.sel.Active()
	if err != nil {
		e.log.Warn("no usable backend", "error", err)
		return ""
	}

	text, err := backend.Transcribe(chunk)
	if err != nil {
		e.log.Warn("transcription failed for chunk",
			"backend", e.sel.ActiveID(), "error", err)
		return ""
	}
	return text
}

// FinalResult drains any trailing recognition from the active backend. A
// backend that was never loaded has nothing buffered, so none is loaded here.
func (e *Engine) FinalResult() string {
	backend, ok := e.sel.ActiveIfLoaded()
	if !ok {
		return ""
	}
	return backend.FinalResult()
}

// ActiveBackend returns the identity of the currently selected backend.
func (e *Engine) ActiveBackend() BackendID {
	return e.sel.ActiveID()
}

// LastLoadError exposes the selector's most recent backend load failure.
func (e *Engine) LastLoadError() error {
	return e.sel.LastLoadError()
}

// Close unloads every backend. Idempotent.
func (e *Engine) Close() {
	e.sel.UnloadAll()
}
