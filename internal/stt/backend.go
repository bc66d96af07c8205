// Package stt provides speech-to-text backends and the resource-adaptive
// engine that switches between them.
//
// Backends:
//   - light: Vosk streaming recognizer, cheap enough to stay resident
//   - heavy: whisper.cpp, better text but expensive to keep loaded
package stt

import (
	"errors"
	"fmt"
)

// ErrBackendLoad wraps backend initialization failures. The selector
// recovers by staying on (or reverting to) the other backend; the pipeline
// keeps running.
var ErrBackendLoad = errors.New("stt: backend failed to load")

// BackendID identifies one of the fixed set of backends.
type BackendID int

const (
	// Light is the always-affordable streaming backend.
	Light BackendID = iota
	// Heavy is the expensive batch backend, loaded lazily and unloaded
	// when the system cannot afford it.
	Heavy
)

// String returns the identifier used in logs and config.
func (id BackendID) String() string {
	switch id {
	case Light:
		return "light"
	case Heavy:
		return "heavy"
	default:
		return fmt.Sprintf("backend(%d)", int(id))
	}
}

// ParseBackendID maps a config value to a BackendID. Empty defaults to
// Light.
func ParseBackendID(s string) (BackendID, error) {
	switch s {
	case "light", "":
		return Light, nil
	case "heavy":
		return Heavy, nil
	default:
		return Light, fmt.Errorf("stt: unknown backend %q (supported: light, heavy)", s)
	}
}

// Backend is an interchangeable transcription implementation. All methods
// are called from a single consumer goroutine; implementations do not need
// internal locking.
type Backend interface {
	// Transcribe feeds one chunk of 16-bit little-endian mono PCM and
	// returns any text recognized so far. Streaming backends may return
	// partial text; batch backends may return "" while accumulating.
	Transcribe(chunk []byte) (string, error)

	// FinalResult drains any trailing buffered recognition. Backends with
	// no segmentation state return "".
	FinalResult() string

	// Load acquires the backend's resources. Idempotent: loading a loaded
	// backend is a no-op.
	Load() error

	// Unload releases resources. Idempotent and safe on an unloaded
	// backend.
	Unload()
}
