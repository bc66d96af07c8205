package stt

import (
	"encoding/json"
	"fmt"
	"log/slog"

	vosk "github.com/alphacep/vosk-api/go"
)

// VoskBackend is the light backend: a Kaldi streaming recognizer. The model
// is small enough to keep resident, but Load is still lazy so a session
// that never selects it pays nothing.
type VoskBackend struct {
	modelPath  string
	sampleRate int
	log        *slog.Logger

	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer
}

// NewVoskBackend creates an unloaded Vosk backend. A nil logger falls back
// to slog.Default().
func NewVoskBackend(modelPath string, sampleRate int, logger *slog.Logger) *VoskBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoskBackend{
		modelPath:  modelPath,
		sampleRate: sampleRate,
		log:        logger,
	}
}

// Load opens the model directory and builds a recognizer. No-op when
// already loaded.
func (b *VoskBackend) Load() error {
	if b.rec != nil {
		return nil
	}

	model, err := vosk.NewModel(b.modelPath)
	if err != nil {
		return fmt.Errorf("%w: vosk model %q: %v", ErrBackendLoad, b.modelPath, err)
	}

	rec, err := vosk.NewRecognizer(model, float64(b.sampleRate))
	if err != nil {
		model.Free()
		return fmt.Errorf("%w: vosk recognizer: %v", ErrBackendLoad, err)
	}
	rec.SetWords(1)

	b.model = model
	b.rec = rec
	b.log.Info("vosk backend loaded", "model", b.modelPath)
	return nil
}

// Unload frees the recognizer and model. Safe on an unloaded backend.
func (b *VoskBackend) Unload() {
	if b.rec != nil {
		b.rec.Free()
		b.rec = nil
	}
	if b.model != nil {
		b.model.Free()
		b.model = nil
	}
}

// Transcribe feeds one PCM chunk to the recognizer. When the recognizer
// closes a segment the full segment text is returned; otherwise the current
// partial text is.
func (b *VoskBackend) Transcribe(chunk []byte) (string, error) {
	if b.rec == nil {
		return "", fmt.Errorf("stt: vosk backend not loaded")
	}

	if b.rec.AcceptWaveform(chunk) != 0 {
		return voskText(b.rec.Result(), "text")
	}
	return voskText(b.rec.PartialResult(), "partial")
}

// FinalResult drains whatever the recognizer is still holding after the
// last chunk.
func (b *VoskBackend) FinalResult() string {
	if b.rec == nil {
		return ""
	}
	text, err := voskText(b.rec.FinalResult(), "text")
	if err != nil {
		b.log.Warn("vosk final result", "error", err)
		return ""
	}
	return text
}

// voskText extracts a field from vosk's JSON result payload.
func voskText(raw, field string) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", fmt.Errorf("stt: parsing vosk result: %w", err)
	}
	text, _ := payload[field].(string)
	return text, nil
}
