// Package monitor samples system resource utilization for the backend
// selector. Sampling is not free (gopsutil walks /proc and sensor files),
// so callers are expected to throttle — the monitor itself does not.
package monitor

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Usage is one resource snapshot. Temperature is 0 when no usable sensor
// exists; consumers must treat 0 as "unknown", not "cold".
type Usage struct {
	CPU         float64 // percent, 0-100
	Memory      float64 // percent, 0-100
	Temperature float64 // degrees Celsius, 0 when unreadable
}

// Sampler is what the backend selector depends on. Tests substitute a
// scripted implementation.
type Sampler interface {
	Sample() (Usage, error)
}

// Monitor reads CPU, memory and CPU temperature via gopsutil.
type Monitor struct {
	log *slog.Logger

	tempWarned bool
}

// New creates a Monitor. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{log: logger}
}

// Sample returns current utilization. CPU and memory failures are errors;
// temperature is best-effort and degrades to 0 with a one-time warning.
func (m *Monitor) Sample() (Usage, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return Usage{}, fmt.Errorf("monitor: sampling cpu: %w", err)
	}
	if len(percents) == 0 {
		return Usage{}, fmt.Errorf("monitor: no cpu sample returned")
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return Usage{}, fmt.Errorf("monitor: sampling memory: %w", err)
	}

	return Usage{
		CPU:         percents[0],
		Memory:      vm.UsedPercent,
		Temperature: m.cpuTemperature(),
	}, nil
}

// cpuTemperature returns the first core temperature sensor reading, or 0.
func (m *Monitor) cpuTemperature() float64 {
	readings, err := sensors.SensorsTemperatures()
	if err != nil && len(readings) == 0 {
		if !m.tempWarned {
			m.log.Warn("cpu temperature unavailable", "error", err)
			m.tempWarned = true
		}
		return 0
	}
	for _, r := range readings {
		key := strings.ToLower(r.SensorKey)
		if strings.Contains(key, "coretemp") || strings.Contains(key, "cpu") {
			return r.Temperature
		}
	}
	if !m.tempWarned {
		m.log.Warn("no cpu temperature sensor found", "sensors", len(readings))
		m.tempWarned = true
	}
	return 0
}
