// Package audio provides microphone capture into a lossy ring buffer.
//
// One background goroutine pulls fixed-size frames from the input device and
// writes them into the ring; the consumer polls GetChunk from its own loop.
// The ring is the only state shared between the two.
package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrDeviceUnavailable wraps failures to open the audio input device.
// Capture cannot proceed without a device; this is surfaced to the caller
// rather than retried.
var ErrDeviceUnavailable = errors.New("audio: input device unavailable")

// StreamConfig describes the stream a Capturer asks its Device to open.
type StreamConfig struct {
	SampleRate int
	Channels   int
	FrameSize  int // samples per frame, per channel
}

// BytesPerFrame returns the size in bytes of one 16-bit PCM frame.
func (c StreamConfig) BytesPerFrame() int {
	return c.FrameSize * c.Channels * 2
}

// Stream is an open audio input stream delivering 16-bit PCM.
type Stream interface {
	// ReadFrame fills buf with the next frame. Device-level overflow is
	// tolerated by implementations and never surfaces as an error; a
	// returned error means the stream is gone and the capture loop exits.
	ReadFrame(buf []byte) (int, error)
	Close() error
}

// Device opens capture streams. The malgo implementation is used in
// production; tests substitute a scripted fake.
type Device interface {
	Open(cfg StreamConfig) (Stream, error)
}

// Config holds capture settings.
type Config struct {
	SampleRate     int
	Channels       int
	FrameSize      int
	BufferDuration time.Duration // ring buffer length in audio time
}

// joinTimeout is the default bound on how long Stop waits for the capture
// goroutine.
const joinTimeout = 2 * time.Second

// Capturer owns the capture goroutine and the ring buffer between the
// device and the consumer.
type Capturer struct {
	dev         Device
	cfg         Config
	log         *slog.Logger
	ring        *Ring
	sink        io.Writer // optional tee of every captured frame, e.g. a WAV dump
	joinTimeout time.Duration

	mu      sync.Mutex
	stream  Stream
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewCapturer creates a capturer over the given device. A nil logger falls
// back to slog.Default().
func NewCapturer(dev Device, cfg Config, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	ringSize := int(cfg.BufferDuration.Seconds() * float64(cfg.SampleRate) * float64(cfg.Channels) * 2)
	if frameBytes := cfg.FrameSize * cfg.Channels * 2; ringSize < frameBytes {
		ringSize = frameBytes
	}
	return &Capturer{
		dev:         dev,
		cfg:         cfg,
		log:         logger,
		ring:        NewRing(ringSize, logger),
		joinTimeout: joinTimeout,
	}
}

// SetSink installs an optional writer that receives a copy of every
// captured frame. Must be called before Start. Sink errors disable the
// sink but never interrupt capture.
func (c *Capturer) SetSink(w io.Writer) {
	c.sink = w
}

// Start opens the input stream and spawns the capture goroutine. Calling
// Start while already running is a no-op with a warning. A device that
// cannot be opened is fatal to capture and reported as ErrDeviceUnavailable.
func (c *Capturer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.log.Warn("audio capture already running")
		return nil
	}

	stream, err := c.dev.Open(StreamConfig{
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
		FrameSize:  c.cfg.FrameSize,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c.stream = stream
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.captureLoop(stream, c.stop, c.done)

	c.log.Info("audio capture started",
		"sample_rate", c.cfg.SampleRate,
		"channels", c.cfg.Channels,
		"frame_size", c.cfg.FrameSize,
		"ring_bytes", c.ring.Capacity())

	return nil
}

// captureLoop reads one frame at a time from the stream into the ring until
// told to stop or the stream dies.
func (c *Capturer) captureLoop(stream Stream, stop, done chan struct{}) {
	defer close(done)

	buf := make([]byte, c.BytesPerFrame())
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := stream.ReadFrame(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Error("audio capture read failed", "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		if err := c.ring.Write(buf[:n]); err != nil {
			// Only ErrOversize reaches here, which means the frame size
			// was misconfigured relative to the ring. Nothing recovers it.
			c.log.Error("audio capture buffer write failed", "error", err)
			return
		}

		if c.sink != nil {
			if _, err := c.sink.Write(buf[:n]); err != nil {
				c.log.Warn("audio dump sink failed, disabling", "error", err)
				c.sink = nil
			}
		}
	}
}

// BytesPerFrame returns the size in bytes of one configured frame.
func (c *Capturer) BytesPerFrame() int {
	return c.cfg.FrameSize * c.cfg.Channels * 2
}

// GetChunk returns one frame's worth of buffered audio, or nil when less
// than a full frame is available. It never blocks.
func (c *Capturer) GetChunk() []byte {
	frame := c.BytesPerFrame()
	if c.ring.Buffered() < frame {
		return nil
	}
	return c.ring.Read(frame)
}

// Overwrites reports how many captured bytes were lost to ring overwrites.
func (c *Capturer) Overwrites() uint64 {
	return c.ring.Overwrites()
}

// Stop signals the capture goroutine, closes the stream to unblock any
// in-flight read, and waits for the goroutine with a bounded timeout. It is
// safe to call multiple times and safe to call if Start was never called.
func (c *Capturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false

	close(c.stop)
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.log.Warn("closing audio stream", "error", err)
		}
		c.stream = nil
	}

	select {
	case <-c.done:
	case <-time.After(c.joinTimeout):
		c.log.Warn("audio capture goroutine did not exit in time")
	}

	c.log.Info("audio capture stopped", "overwritten_bytes", c.ring.Overwrites())
}
