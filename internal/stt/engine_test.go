package stt

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/smartlog-ai/smartlog/internal/monitor"
)

func newTestEngine(cfg SelectorConfig, light, heavy Backend, sampler monitor.Sampler) *Engine {
	return &Engine{
		sel: NewSelector(cfg, light, heavy, sampler, nil),
		log: slog.Default(),
	}
}

func TestEngineTranscribeDelegates(t *testing.T) {
	light := &fakeBackend{text: "hello world"}
	heavy := &fakeBackend{}
	e := newTestEngine(testSelectorConfig(), light, heavy, &scriptedSampler{usages: []monitor.Usage{{CPU: 76, Memory: 80}}})
	defer e.Close()

	got := e.Transcribe([]byte("chunk"))
	if got != "hello world" {
		t.Errorf("Transcribe() = %q, want %q", got, "hello world")
	}
	if light.transcribes != 1 {
		t.Errorf("light.transcribes = %d, want 1", light.transcribes)
	}
}

func TestEngineChunkFailureYieldsEmpty(t *testing.T) {
	light := &fakeBackend{transcribeErr: errors.New("decoder hiccup")}
	e := newTestEngine(testSelectorConfig(), light, &fakeBackend{}, &scriptedSampler{usages: []monitor.Usage{{CPU: 76, Memory: 80}}})
	defer e.Close()

	// Per-chunk failures yield "" and keep the loop alive.
	for i := 0; i < 3; i++ {
		if got := e.Transcribe([]byte("chunk")); got != "" {
			t.Errorf("Transcribe() #%d = %q, want \"\"", i, got)
		}
	}
	if light.transcribes != 3 {
		t.Errorf("light.transcribes = %d, want 3", light.transcribes)
	}
}

func TestEngineHeavyLoadFailureKeepsTranscribing(t *testing.T) {
	light := &fakeBackend{text: "still here"}
	heavy := &fakeBackend{loadErr: errors.New("ggml file corrupt")}
	sampler := &scriptedSampler{usages: []monitor.Usage{{CPU: 5, Memory: 5}}}
	e := newTestEngine(testSelectorConfig(), light, heavy, sampler)
	defer e.Close()

	// Idle usage makes the selector try Light -> Heavy; the load fails.
	got := e.Transcribe([]byte("chunk"))
	if got != "still here" {
		t.Errorf("Transcribe() = %q, want %q", got, "still here")
	}
	if e.ActiveBackend() != Light {
		t.Errorf("ActiveBackend() = %v, want Light", e.ActiveBackend())
	}
	if e.LastLoadError() == nil {
		t.Error("LastLoadError() = nil, want recorded load failure")
	}
}

func TestEngineFinalResult(t *testing.T) {
	light := &fakeBackend{final: "trailing words"}
	e := newTestEngine(testSelectorConfig(), light, &fakeBackend{}, &scriptedSampler{usages: []monitor.Usage{{CPU: 76, Memory: 80}}})
	defer e.Close()

	e.Transcribe([]byte("chunk")) // load the light backend
	if got := e.FinalResult(); got != "trailing words" {
		t.Errorf("FinalResult() = %q, want %q", got, "trailing words")
	}
}

func TestEngineFinalResultNeverLoaded(t *testing.T) {
	light := &fakeBackend{final: "stale"}
	heavy := &fakeBackend{}
	e := newTestEngine(testSelectorConfig(), light, heavy, &scriptedSampler{})
	defer e.Close()

	// Draining a pipeline that never transcribed must not pull a model in.
	if got := e.FinalResult(); got != "" {
		t.Errorf("FinalResult() on never-used engine = %q, want \"\"", got)
	}
	if light.loads != 0 || heavy.loads != 0 {
		t.Errorf("loads = %d/%d, want 0/0", light.loads, heavy.loads)
	}
}

func TestEngineCloseIdempotent(t *testing.T) {
	light := &fakeBackend{}
	heavy := &fakeBackend{}
	e := newTestEngine(testSelectorConfig(), light, heavy, &scriptedSampler{usages: []monitor.Usage{{CPU: 76, Memory: 80}}})

	e.Transcribe([]byte("chunk")) // force the light backend to load
	e.Close()
	e.Close()

	if light.loaded || heavy.loaded {
		t.Error("backends still loaded after Close")
	}
}

func TestEngineNoUsableBackend(t *testing.T) {
	light := &fakeBackend{loadErr: errors.New("no model")}
	heavy := &fakeBackend{loadErr: errors.New("no model")}
	e := newTestEngine(testSelectorConfig(), light, heavy, &scriptedSampler{usages: []monitor.Usage{{CPU: 76, Memory: 80}}})
	defer e.Close()

	if got := e.Transcribe([]byte("chunk")); got != "" {
		t.Errorf("Transcribe() = %q, want \"\" with no loadable backend", got)
	}
	if got := e.FinalResult(); got != "" {
		t.Errorf("FinalResult() = %q, want \"\"", got)
	}
}

func TestParseBackendID(t *testing.T) {
	cases := []struct {
		in      string
		want    BackendID
		wantErr bool
	}{
		{"light", Light, false},
		{"heavy", Heavy, false},
		{"", Light, false},
		{"vosk", Light, true},
	}
	for _, tc := range cases {
		got, err := ParseBackendID(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseBackendID(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseBackendID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBackendIDString(t *testing.T) {
	if Light.String() != "light" || Heavy.String() != "heavy" {
		t.Errorf("String() = %q/%q, want light/heavy", Light, Heavy)
	}
}

func TestPCMToFloat32(t *testing.T) {
	// 0x7FFF is the max positive int16; 0x8000 is the min negative.
	data := []byte{0xFF, 0x7F, 0x00, 0x80, 0x00, 0x00}
	samples := pcmToFloat32(data)
	if len(samples) != 3 {
		t.Fatalf("len = %d, want 3", len(samples))
	}
	if samples[0] <= 0.99 || samples[0] > 1.0 {
		t.Errorf("samples[0] = %f, want just under 1.0", samples[0])
	}
	if samples[1] != -1.0 {
		t.Errorf("samples[1] = %f, want -1.0", samples[1])
	}
	if samples[2] != 0 {
		t.Errorf("samples[2] = %f, want 0", samples[2])
	}
}
