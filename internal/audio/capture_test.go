package audio

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeStream serves a scripted sequence of frames, then blocks until closed.
type fakeStream struct {
	mu     sync.Mutex
	frames [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeStream(frames ...[]byte) *fakeStream {
	return &fakeStream{frames: frames, closed: make(chan struct{})}
}

func (s *fakeStream) ReadFrame(buf []byte) (int, error) {
	s.mu.Lock()
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return copy(buf, f), nil
	}
	s.mu.Unlock()
	<-s.closed
	return 0, io.EOF
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// fakeDevice hands out a fresh fakeStream per Open, or fails.
type fakeDevice struct {
	mu      sync.Mutex
	err     error
	frames  [][]byte
	opened  int
	streams []*fakeStream
}

func (d *fakeDevice) Open(cfg StreamConfig) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.opened++
	s := newFakeStream(d.frames...)
	d.streams = append(d.streams, s)
	return s, nil
}

func testConfig() Config {
	return Config{
		SampleRate:     16000,
		Channels:       1,
		FrameSize:      4, // 8 bytes per frame, tiny for tests
		BufferDuration: time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCapturerDeliversChunks(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	dev := &fakeDevice{frames: [][]byte{frame, frame}}
	c := NewCapturer(dev, testConfig(), nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return c.GetChunk() != nil })
}

func TestCapturerGetChunkNonBlocking(t *testing.T) {
	dev := &fakeDevice{}
	c := NewCapturer(dev, testConfig(), nil)

	if got := c.GetChunk(); got != nil {
		t.Errorf("GetChunk() before Start = %v, want nil", got)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	// No frames scripted: must return nil immediately, not block.
	if got := c.GetChunk(); got != nil {
		t.Errorf("GetChunk() with empty buffer = %v, want nil", got)
	}
}

func TestCapturerChunkContents(t *testing.T) {
	frame := []byte{9, 8, 7, 6, 5, 4, 3, 2}
	dev := &fakeDevice{frames: [][]byte{frame}}
	c := NewCapturer(dev, testConfig(), nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	var got []byte
	waitFor(t, func() bool {
		got = c.GetChunk()
		return got != nil
	})
	if !bytes.Equal(got, frame) {
		t.Errorf("GetChunk() = %v, want %v", got, frame)
	}
}

func TestCapturerStartTwice(t *testing.T) {
	dev := &fakeDevice{}
	c := NewCapturer(dev, testConfig(), nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	if err := c.Start(); err != nil {
		t.Errorf("second Start() error = %v, want nil no-op", err)
	}
	dev.mu.Lock()
	opened := dev.opened
	dev.mu.Unlock()
	if opened != 1 {
		t.Errorf("device opened %d times, want 1", opened)
	}
}

func TestCapturerStopBeforeStart(t *testing.T) {
	c := NewCapturer(&fakeDevice{}, testConfig(), nil)
	c.Stop() // must not panic or block
	c.Stop()
}

func TestCapturerRepeatedStartStop(t *testing.T) {
	dev := &fakeDevice{}
	c := NewCapturer(dev, testConfig(), nil)

	for i := 0; i < 5; i++ {
		if err := c.Start(); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
		c.Stop()
		c.Stop() // idempotent
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.opened != 5 {
		t.Errorf("device opened %d times, want 5", dev.opened)
	}
	for i, s := range dev.streams {
		select {
		case <-s.closed:
		default:
			t.Errorf("stream %d not closed after Stop", i)
		}
	}
}

func TestCapturerDeviceOpenFailure(t *testing.T) {
	dev := &fakeDevice{err: errors.New("no microphone")}
	c := NewCapturer(dev, testConfig(), nil)

	err := c.Start()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Start() error = %v, want ErrDeviceUnavailable", err)
	}

	c.Stop() // failed start leaves a stoppable capturer
}

// stuckStream wedges in ReadFrame and ignores Close, simulating a driver
// that never returns.
type stuckStream struct {
	block chan struct{}
}

func (s *stuckStream) ReadFrame(buf []byte) (int, error) {
	<-s.block
	return 0, io.EOF
}

func (s *stuckStream) Close() error { return nil }

type stuckDevice struct {
	s *stuckStream
}

func (d *stuckDevice) Open(StreamConfig) (Stream, error) { return d.s, nil }

func TestCapturerStopWarnsOnStuckGoroutine(t *testing.T) {
	s := &stuckStream{block: make(chan struct{})}
	rec := &warnRecorder{}
	c := NewCapturer(&stuckDevice{s: s}, testConfig(), slog.New(rec))
	c.joinTimeout = 10 * time.Millisecond

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Stop() // must return despite the wedged read, with a warning

	if got := rec.count(); got != 1 {
		t.Errorf("warnings after Stop = %d, want 1", got)
	}
	close(s.block) // release the goroutine
}

func TestCapturerSink(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	dev := &fakeDevice{frames: [][]byte{frame}}
	c := NewCapturer(dev, testConfig(), nil)

	var sink bytes.Buffer
	var mu sync.Mutex
	c.SetSink(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return sink.Write(p)
	}))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Equal(sink.Bytes(), frame)
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
