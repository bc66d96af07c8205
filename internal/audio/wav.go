package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavDump writes every frame it receives to a 16-bit PCM WAV file. It is
// meant as a capture sink (Capturer.SetSink) for troubleshooting sessions:
// whatever the backends heard can be replayed later.
type WavDump struct {
	f   *os.File
	enc *wav.Encoder
}

// NewWavDump creates the dump file, truncating any previous one.
func NewWavDump(path string, sampleRate, channels int) (*WavDump, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio: creating dump file: %w", err)
	}
	return &WavDump{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, 16, channels, 1),
	}, nil
}

// Write appends raw little-endian int16 PCM bytes to the WAV stream.
func (d *WavDump) Write(p []byte) (int, error) {
	samples := make([]int, len(p)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(p[i*2:])))
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: d.enc.NumChans,
			SampleRate:  d.enc.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := d.enc.Write(buf); err != nil {
		return 0, fmt.Errorf("audio: writing dump: %w", err)
	}
	return len(p), nil
}

// Close finalizes the WAV header and closes the file.
func (d *WavDump) Close() error {
	if err := d.enc.Close(); err != nil {
		d.f.Close()
		return fmt.Errorf("audio: finalizing dump: %w", err)
	}
	return d.f.Close()
}
