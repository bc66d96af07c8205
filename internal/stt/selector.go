package stt

import (
	"log/slog"
	"time"

	"github.com/smartlog-ai/smartlog/internal/monitor"
)

// loadState tracks whether a backend currently holds its resources.
type loadState int

const (
	unloaded loadState = iota
	ready
)

// SelectorConfig tunes the switching state machine. Zero-value thresholds
// are replaced by defaults in NewSelector; the zero CheckEvery/CheckInterval
// disable the respective throttle gate.
type SelectorConfig struct {
	Default       BackendID
	CPUThreshold  float64       // switch down above this CPU percent
	MemThreshold  float64       // switch down above this memory percent
	Hysteresis    float64       // margin below thresholds required to switch up
	Cooldown      time.Duration // minimum time between switches
	CheckEvery    int           // evaluate at most every N calls (0: every call)
	CheckInterval time.Duration // and at most once per interval (0: no gate)
	TempThreshold float64       // °C; 0 disables temperature throttling
}

// Selector decides which backend is active. It owns all switching state and
// the lazy load/unload of backend resources.
//
// Selector is not safe for concurrent use: the pipeline has exactly one
// consumer goroutine, and that goroutine is the only caller. This keeps
// backend Load/Unload trivially serialized with Transcribe.
type Selector struct {
	cfg      SelectorConfig
	sampler  monitor.Sampler
	log      *slog.Logger
	backends map[BackendID]Backend
	states   map[BackendID]loadState

	active     BackendID
	lastSwitch time.Time
	lastCheck  time.Time
	calls      int
	loadErr    error

	now func() time.Time // injected for tests
}

// NewSelector builds a selector over the given backends. The default
// backend is not loaded until first use.
func NewSelector(cfg SelectorConfig, light, heavy Backend, sampler monitor.Sampler, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		cfg:     cfg,
		sampler: sampler,
		log:     logger,
		backends: map[BackendID]Backend{
			Light: light,
			Heavy: heavy,
		},
		states: map[BackendID]loadState{
			Light: unloaded,
			Heavy: unloaded,
		},
		active: cfg.Default,
		now:    time.Now,
	}
}

// ActiveID returns the identity of the currently selected backend.
func (s *Selector) ActiveID() BackendID {
	return s.active
}

// LastLoadError returns the most recent backend load failure, if any. Load
// failures are recoverable (the selector falls back), so they are recorded
// here rather than propagated through the transcription path.
func (s *Selector) LastLoadError() error {
	return s.loadErr
}

// Active returns the selected backend, loading it lazily. If the Heavy
// backend cannot load, the selector falls back to Light rather than leave
// the pipeline without any backend.
func (s *Selector) Active() (Backend, error) {
	if err := s.ensureLoaded(s.active); err != nil {
		s.loadErr = err
		if s.active != Heavy {
			return nil, err
		}
		s.log.Warn("heavy backend unavailable, falling back to light", "error", err)
		s.active = Light
		if err := s.ensureLoaded(Light); err != nil {
			s.loadErr = err
			return nil, err
		}
	}
	return s.backends[s.active], nil
}

// ActiveIfLoaded returns the active backend only when it already holds its
// resources. It never triggers a load: drain paths use it so flushing a
// never-used pipeline does not pull a model into memory.
func (s *Selector) ActiveIfLoaded() (Backend, bool) {
	if s.states[s.active] != ready {
		return nil, false
	}
	return s.backends[s.active], true
}

// CheckAndMaybeSwitch evaluates resource usage and switches backends when
// warranted. The evaluation itself is throttled (sampling is not free), and
// switches are additionally bounded by the cooldown.
func (s *Selector) CheckAndMaybeSwitch() {
	s.calls++
	if s.cfg.CheckEvery > 0 && s.calls%s.cfg.CheckEvery != 0 {
		return
	}

	now := s.now()
	if s.cfg.CheckInterval > 0 && now.Sub(s.lastCheck) < s.cfg.CheckInterval {
		return
	}
	s.lastCheck = now

	if now.Sub(s.lastSwitch) < s.cfg.Cooldown {
		return
	}

	u, err := s.sampler.Sample()
	if err != nil {
		s.log.Warn("resource sampling failed, keeping current backend", "error", err)
		return
	}

	switch s.active {
	case Heavy:
		if s.overloaded(u) {
			s.switchDown(u, now)
		}
	case Light:
		if s.comfortablyIdle(u) {
			s.switchUp(u, now)
		}
	}
}

// overloaded reports whether usage justifies dropping the heavy backend.
func (s *Selector) overloaded(u monitor.Usage) bool {
	if u.CPU > s.cfg.CPUThreshold || u.Memory > s.cfg.MemThreshold {
		return true
	}
	return s.cfg.TempThreshold > 0 && u.Temperature > s.cfg.TempThreshold
}

// comfortablyIdle reports whether usage sits far enough below the
// thresholds to afford the heavy backend. The hysteresis margin is what
// prevents oscillation right at the boundary. An unknown temperature (0)
// never blocks the switch.
func (s *Selector) comfortablyIdle(u monitor.Usage) bool {
	if u.CPU >= s.cfg.CPUThreshold-s.cfg.Hysteresis {
		return false
	}
	if u.Memory >= s.cfg.MemThreshold-s.cfg.Hysteresis {
		return false
	}
	if s.cfg.TempThreshold > 0 && u.Temperature >= s.cfg.TempThreshold-s.cfg.Hysteresis {
		return false
	}
	return true
}

// switchDown moves Heavy -> Light, freeing the heavy backend's resources.
func (s *Selector) switchDown(u monitor.Usage, now time.Time) {
	if err := s.ensureLoaded(Light); err != nil {
		// No usable backend below us: stay on Heavy.
		s.loadErr = err
		s.log.Warn("light backend failed to load, staying on heavy", "error", err)
		return
	}

	s.backends[Heavy].Unload()
	s.states[Heavy] = unloaded
	s.active = Light
	s.lastSwitch = now
	s.log.Info("switched to light backend",
		"cpu", u.CPU, "mem", u.Memory, "temp", u.Temperature)
}

// switchUp moves Light -> Heavy. The light backend stays resident; it is
// cheap, and keeping it avoids a reload on the next downswitch.
func (s *Selector) switchUp(u monitor.Usage, now time.Time) {
	if err := s.ensureLoaded(Heavy); err != nil {
		// Recoverable: stay on Light. The switch timestamp is still
		// recorded so retries are spaced by the cooldown.
		s.loadErr = err
		s.lastSwitch = now
		s.log.Warn("heavy backend failed to load, staying on light", "error", err)
		return
	}

	s.active = Heavy
	s.lastSwitch = now
	s.log.Info("switched to heavy backend",
		"cpu", u.CPU, "mem", u.Memory, "temp", u.Temperature)
}

// ensureLoaded lazily loads a backend. Load is idempotent on backends, but
// the state map avoids even the no-op call on the hot path.
func (s *Selector) ensureLoaded(id BackendID) error {
	if s.states[id] == ready {
		return nil
	}
	if err := s.backends[id].Load(); err != nil {
		return err
	}
	s.states[id] = ready
	return nil
}

// UnloadAll releases every backend's resources. Idempotent.
func (s *Selector) UnloadAll() {
	for id, b := range s.backends {
		b.Unload()
		s.states[id] = unloaded
	}
}
