package performance

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/procfs"
)

// ProcSource samples the resident memory and CPU usage of the running
// process from /proc. Frame rate, battery and render time are not
// observable there and are reported as unknown.
type ProcSource struct {
	mu      sync.Mutex
	fs      procfs.FS
	clock   clockwork.Clock
	lastCPU float64
	hasLast bool
	lastAt  int64
}

// NewProcSource opens the default /proc mount.
func NewProcSource(clock clockwork.Clock) (*ProcSource, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ProcSource{fs: fs, clock: clock}, nil
}

// Sample implements Source. CPU percent is averaged across cores since the
// previous sample and is zero on the first call.
func (s *ProcSource) Sample(ctx context.Context) (Metrics, error) {
	if err := ctx.Err(); err != nil {
		return Metrics{}, err
	}
	proc, err := s.fs.Self()
	if err != nil {
		return Metrics{}, fmt.Errorf("read self process: %w", err)
	}
	st, err := proc.Stat()
	if err != nil {
		return Metrics{}, fmt.Errorf("read process stat: %w", err)
	}

	now := s.clock.Now()
	cpuSeconds := st.CPUTime()

	s.mu.Lock()
	var cpuPercent float64
	if s.hasLast {
		elapsed := float64(now.UnixNano()-s.lastAt) / 1e9
		if elapsed > 0 {
			cpuPercent = (cpuSeconds - s.lastCPU) / elapsed / float64(runtime.NumCPU()) * 100
		}
	}
	s.lastCPU, s.lastAt, s.hasLast = cpuSeconds, now.UnixNano(), true
	s.mu.Unlock()

	return Metrics{
		At:           now,
		MemoryMB:     float64(st.ResidentMemory()) / (1024 * 1024),
		CPUPercent:   max(cpuPercent, 0),
		Thermal:      ThermalNominal,
		BatteryLevel: BatteryUnknown,
	}, nil
}

// ScriptedSource replays a fixed sequence of samples. After the last step it
// keeps returning the final sample.
type ScriptedSource struct {
	mu    sync.Mutex
	steps []Metrics
	next  int
}

// NewScriptedSource creates a source replaying steps in order.
func NewScriptedSource(steps ...Metrics) *ScriptedSource {
	return &ScriptedSource{steps: append([]Metrics(nil), steps...)}
}

// Sample implements Source.
func (s *ScriptedSource) Sample(ctx context.Context) (Metrics, error) {
	if err := ctx.Err(); err != nil {
		return Metrics{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return Metrics{}, fmt.Errorf("scripted source has no samples")
	}
	i := min(s.next, len(s.steps)-1)
	if s.next < len(s.steps) {
		s.next++
	}
	return s.steps[i], nil
}

// Remaining returns how many scripted steps have not been replayed yet.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}

func healthy() Metrics {
	return Metrics{MemoryMB: 420, CPUPercent: 35, FrameRate: 60, Thermal: ThermalNominal, BatteryLevel: 0.8, RenderTimeMS: 12, NetworkLatencyMS: Latency(80)}
}

var profiles = map[string]func() []Metrics{
	"steady": func() []Metrics {
		return []Metrics{healthy()}
	},
	"memory-pressure": func() []Metrics {
		steps := []Metrics{healthy()}
		for _, mb := range []float64{650, 850, 1000, 1300, 1250, 700, 450} {
			m := healthy()
			m.MemoryMB = mb
			steps = append(steps, m)
		}
		return steps
	},
	"thermal-spike": func() []Metrics {
		steps := []Metrics{healthy()}
		for _, th := range []Thermal{ThermalFair, ThermalSerious, ThermalCritical, ThermalFair, ThermalNominal} {
			m := healthy()
			m.Thermal = th
			if th == ThermalSerious || th == ThermalCritical {
				m.FrameRate = 28
				m.RenderTimeMS = 45
			}
			steps = append(steps, m)
		}
		return steps
	},
	"battery-drain": func() []Metrics {
		var steps []Metrics
		for _, lvl := range []float64{0.5, 0.3, 0.18, 0.12, 0.08} {
			m := healthy()
			m.BatteryLevel = lvl
			steps = append(steps, m)
		}
		return steps
	},
	"slow-network": func() []Metrics {
		m := healthy()
		m.NetworkLatencyMS = Latency(8000)
		return []Metrics{healthy(), m}
	},
}

// ProfileNames lists the built-in scripted profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ScriptedProfile returns a scripted source for a named profile.
func ScriptedProfile(name string) (*ScriptedSource, error) {
	build, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown performance profile %q (available: %v)", name, ProfileNames())
	}
	return NewScriptedSource(build()...), nil
}
