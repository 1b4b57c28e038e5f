package config

import "fmt"

// Thresholds is one row of the environment-scoped performance threshold table.
// Values are read-only once handed to the performance monitor; a reload swaps
// the whole row.
type Thresholds struct {
	MemoryWarningMB    float64 `yaml:"memory_warning_mb,omitempty" json:"memoryWarningMB"`
	MemoryCriticalMB   float64 `yaml:"memory_critical_mb,omitempty" json:"memoryCriticalMB"`
	CPUWarningPercent  float64 `yaml:"cpu_warning_percent,omitempty" json:"cpuWarningPercent"`
	CPUCriticalPercent float64 `yaml:"cpu_critical_percent,omitempty" json:"cpuCriticalPercent"`
	FrameRateWarning   float64 `yaml:"frame_rate_warning,omitempty" json:"frameRateWarning"`
	FrameRateCritical  float64 `yaml:"frame_rate_critical,omitempty" json:"frameRateCritical"`
	BatteryLowLevel    float64 `yaml:"battery_low_level,omitempty" json:"batteryLowLevel"`
	BatteryCritical    float64 `yaml:"battery_critical_level,omitempty" json:"batteryCriticalLevel"`
	NetworkTimeoutMS   float64 `yaml:"network_timeout_ms,omitempty" json:"networkTimeoutMS"`
	RenderTimeoutMS    float64 `yaml:"render_timeout_ms,omitempty" json:"renderTimeoutMS"`
	ConcurrencyCap     int     `yaml:"concurrency_cap,omitempty" json:"concurrencyCap"`
	CacheCapMB         int     `yaml:"cache_cap_mb,omitempty" json:"cacheCapMB"`
}

var defaultThresholds = map[Environment]Thresholds{
	EnvDevelopment: {
		MemoryWarningMB:    1000,
		MemoryCriticalMB:   1500,
		CPUWarningPercent:  85,
		CPUCriticalPercent: 95,
		FrameRateWarning:   30,
		FrameRateCritical:  15,
		BatteryLowLevel:    0.15,
		BatteryCritical:    0.05,
		NetworkTimeoutMS:   10000,
		RenderTimeoutMS:    50,
		ConcurrencyCap:     8,
		CacheCapMB:         512,
	},
	EnvStaging: {
		MemoryWarningMB:    900,
		MemoryCriticalMB:   1300,
		CPUWarningPercent:  75,
		CPUCriticalPercent: 90,
		FrameRateWarning:   45,
		FrameRateCritical:  25,
		BatteryLowLevel:    0.2,
		BatteryCritical:    0.1,
		NetworkTimeoutMS:   7000,
		RenderTimeoutMS:    40,
		ConcurrencyCap:     6,
		CacheCapMB:         384,
	},
	EnvProduction: {
		MemoryWarningMB:    800,
		MemoryCriticalMB:   1200,
		CPUWarningPercent:  70,
		CPUCriticalPercent: 90,
		FrameRateWarning:   45,
		FrameRateCritical:  25,
		BatteryLowLevel:    0.2,
		BatteryCritical:    0.1,
		NetworkTimeoutMS:   5000,
		RenderTimeoutMS:    33,
		ConcurrencyCap:     4,
		CacheCapMB:         256,
	},
}

// DefaultThresholds returns the built-in row for env. Unknown environments get
// the production row.
func DefaultThresholds(env Environment) Thresholds {
	if t, ok := defaultThresholds[env]; ok {
		return t
	}
	return defaultThresholds[EnvProduction]
}

// ThresholdsFor returns the effective row for the configured environment:
// the built-in row with any non-zero configured overrides applied.
func (c *Config) ThresholdsFor(env Environment) Thresholds {
	base := DefaultThresholds(env)
	if c == nil {
		return base
	}
	if o, ok := c.Performance.Thresholds[env]; ok {
		base = base.Merge(o)
	}
	return base
}

// Thresholds returns the effective row for c.Environment.
func (c *Config) Thresholds() Thresholds {
	return c.ThresholdsFor(c.Environment)
}

// Merge returns t with every non-zero field of o applied.
func (t Thresholds) Merge(o Thresholds) Thresholds {
	setF := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	setF(&t.MemoryWarningMB, o.MemoryWarningMB)
	setF(&t.MemoryCriticalMB, o.MemoryCriticalMB)
	setF(&t.CPUWarningPercent, o.CPUWarningPercent)
	setF(&t.CPUCriticalPercent, o.CPUCriticalPercent)
	setF(&t.FrameRateWarning, o.FrameRateWarning)
	setF(&t.FrameRateCritical, o.FrameRateCritical)
	setF(&t.BatteryLowLevel, o.BatteryLowLevel)
	setF(&t.BatteryCritical, o.BatteryCritical)
	setF(&t.NetworkTimeoutMS, o.NetworkTimeoutMS)
	setF(&t.RenderTimeoutMS, o.RenderTimeoutMS)
	if o.ConcurrencyCap != 0 {
		t.ConcurrencyCap = o.ConcurrencyCap
	}
	if o.CacheCapMB != 0 {
		t.CacheCapMB = o.CacheCapMB
	}
	return t
}

// Validate checks that warning and critical levels are ordered and positive.
func (t Thresholds) Validate() error {
	switch {
	case t.MemoryWarningMB <= 0 || t.MemoryCriticalMB <= t.MemoryWarningMB:
		return fmt.Errorf("memory thresholds must satisfy 0 < warning (%.0f) < critical (%.0f)", t.MemoryWarningMB, t.MemoryCriticalMB)
	case t.CPUWarningPercent <= 0 || t.CPUCriticalPercent <= t.CPUWarningPercent || t.CPUCriticalPercent > 100:
		return fmt.Errorf("cpu thresholds must satisfy 0 < warning (%.0f) < critical (%.0f) <= 100", t.CPUWarningPercent, t.CPUCriticalPercent)
	case t.FrameRateCritical <= 0 || t.FrameRateWarning <= t.FrameRateCritical:
		return fmt.Errorf("frame rate thresholds must satisfy 0 < critical (%.0f) < warning (%.0f)", t.FrameRateCritical, t.FrameRateWarning)
	case t.BatteryCritical <= 0 || t.BatteryLowLevel <= t.BatteryCritical || t.BatteryLowLevel > 1:
		return fmt.Errorf("battery thresholds must satisfy 0 < critical (%.2f) < low (%.2f) <= 1", t.BatteryCritical, t.BatteryLowLevel)
	case t.NetworkTimeoutMS <= 0 || t.RenderTimeoutMS <= 0:
		return fmt.Errorf("network and render timeouts must be positive")
	case t.ConcurrencyCap <= 0 || t.CacheCapMB <= 0:
		return fmt.Errorf("concurrency and cache caps must be positive")
	}
	return nil
}
