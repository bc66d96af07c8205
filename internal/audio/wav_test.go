package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestWavDumpRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.wav")

	d, err := NewWavDump(path, 16000, 1)
	if err != nil {
		t.Fatalf("NewWavDump() error = %v", err)
	}

	// Two frames of little-endian int16: 1, -1, 256, -256.
	pcm := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x01, 0x00, 0xFF}
	if _, err := d.Write(pcm); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening dump: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding dump: %v", err)
	}

	want := []int{1, -1, 256, -256}
	if len(buf.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(want))
	}
	for i, w := range want {
		if buf.Data[i] != w {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], w)
		}
	}
	if dec.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", dec.SampleRate)
	}
}
