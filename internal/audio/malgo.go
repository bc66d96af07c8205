package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
)

// frameQueueDepth is how many device callbacks may be pending before the
// oldest is dropped. Dropping here mirrors a device-level overflow: capture
// tolerates it and keeps going.
const frameQueueDepth = 8

// MalgoDevice opens capture streams on the default system microphone via
// miniaudio. Call Close when no more streams will be opened.
type MalgoDevice struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoDevice initializes the miniaudio context.
func NewMalgoDevice() (*MalgoDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}
	return &MalgoDevice{ctx: ctx}, nil
}

// Open starts a 16-bit PCM capture stream at the requested rate and channel
// count. miniaudio pushes data through a callback; the stream buffers those
// callbacks in a bounded queue so the capture loop can pull frames.
func (d *MalgoDevice) Open(cfg StreamConfig) (Stream, error) {
	s := &malgoStream{
		frames: make(chan []byte, frameQueueDepth),
		closed: make(chan struct{}),
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = uint32(cfg.Channels)
	deviceCfg.SampleRate = uint32(cfg.SampleRate)
	deviceCfg.PeriodSizeInFrames = uint32(cfg.FrameSize)

	device, err := malgo.InitDevice(d.ctx.Context, deviceCfg, malgo.DeviceCallbacks{
		Data: s.onData,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: starting capture device: %w", err)
	}

	s.device = device
	return s, nil
}

// Close releases the miniaudio context.
func (d *MalgoDevice) Close() error {
	if d.ctx == nil {
		return nil
	}
	if err := d.ctx.Uninit(); err != nil {
		return fmt.Errorf("audio: uninitializing context: %w", err)
	}
	d.ctx.Free()
	d.ctx = nil
	return nil
}

// malgoStream adapts miniaudio's push callback to the pull-model Stream.
type malgoStream struct {
	device  *malgo.Device
	frames  chan []byte
	closed  chan struct{}
	once    sync.Once
	pending []byte // leftover from a callback larger than one read; single reader
}

// onData runs on miniaudio's thread. It copies the callback buffer and
// queues it; when the queue is full the oldest pending frame is dropped,
// never the callback blocked.
func (s *malgoStream) onData(_, pSample []byte, _ uint32) {
	if len(pSample) == 0 {
		return
	}
	data := make([]byte, len(pSample))
	copy(data, pSample)

	for {
		select {
		case <-s.closed:
			return
		case s.frames <- data:
			return
		default:
			select {
			case <-s.frames: // overflow: drop oldest
			default:
			}
		}
	}
}

// ReadFrame delivers the next queued callback buffer into buf. Callbacks
// larger than one frame are carried over to the next read. A closed stream
// reports io.EOF.
func (s *malgoStream) ReadFrame(buf []byte) (int, error) {
	if len(s.pending) > 0 {
		n := copy(buf, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}
	select {
	case <-s.closed:
		return 0, io.EOF
	case data := <-s.frames:
		n := copy(buf, data)
		s.pending = data[n:]
		return n, nil
	}
}

// Close stops the device and wakes any blocked ReadFrame.
func (s *malgoStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		if s.device != nil {
			s.device.Uninit()
			s.device = nil
		}
	})
	return nil
}
