package stt

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperBackend is the heavy backend. whisper.cpp works on windows of
// audio rather than a byte stream, so chunks are accumulated until
// windowSeconds of samples are buffered, then transcribed in one pass.
// Between passes Transcribe returns "".
type WhisperBackend struct {
	modelPath  string
	sampleRate int
	window     int // samples per transcription pass
	log        *slog.Logger

	model   whisper.Model
	samples []float32
}

// NewWhisperBackend creates an unloaded whisper backend transcribing every
// windowSeconds of audio.
func NewWhisperBackend(modelPath string, sampleRate int, windowSeconds float64, logger *slog.Logger) *WhisperBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhisperBackend{
		modelPath:  modelPath,
		sampleRate: sampleRate,
		window:     int(windowSeconds * float64(sampleRate)),
		log:        logger,
	}
}

// Load reads the ggml model into memory. This is the expensive call the
// selector defers and the reason Unload exists at all.
func (b *WhisperBackend) Load() error {
	if b.model != nil {
		return nil
	}

	model, err := whisper.New(b.modelPath)
	if err != nil {
		return fmt.Errorf("%w: whisper model %q: %v", ErrBackendLoad, b.modelPath, err)
	}

	b.model = model
	b.log.Info("whisper backend loaded", "model", b.modelPath)
	return nil
}

// Unload releases the model and drops any partially accumulated window.
// Safe on an unloaded backend.
func (b *WhisperBackend) Unload() {
	if b.model != nil {
		if err := b.model.Close(); err != nil {
			b.log.Warn("closing whisper model", "error", err)
		}
		b.model = nil
	}
	b.samples = nil
}

// Transcribe accumulates the chunk and runs the model once a full window is
// buffered.
func (b *WhisperBackend) Transcribe(chunk []byte) (string, error) {
	if b.model == nil {
		return "", fmt.Errorf("stt: whisper backend not loaded")
	}

	b.samples = append(b.samples, pcmToFloat32(chunk)...)
	if len(b.samples) < b.window {
		return "", nil
	}

	text, err := b.process(b.samples)
	b.samples = b.samples[:0]
	return text, err
}

// FinalResult flushes whatever is left in the window. Very short tails are
// dropped: whisper reliably hallucinates on sub-100ms input.
func (b *WhisperBackend) FinalResult() string {
	if b.model == nil || len(b.samples) < b.sampleRate/10 {
		b.samples = nil
		return ""
	}

	text, err := b.process(b.samples)
	b.samples = nil
	if err != nil {
		b.log.Warn("whisper final result", "error", err)
		return ""
	}
	return text
}

// process runs one transcription pass over samples.
func (b *WhisperBackend) process(samples []float32) (string, error) {
	ctx, err := b.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("stt: create whisper context: %w", err)
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("stt: whisper process: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stt: whisper next segment: %w", err)
		}
		segments = append(segments, seg.Text)
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

// pcmToFloat32 converts little-endian int16 PCM to float32 in [-1, 1].
func pcmToFloat32(data []byte) []float32 {
	samples := make([]float32, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		s := int16(binary.LittleEndian.Uint16(data[i:]))
		samples = append(samples, float32(s)/float32(math.MaxInt16+1))
	}
	return samples
}
