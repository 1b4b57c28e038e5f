package config

import (
	"fmt"
	"time"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// Default values shared by the appliers and documentation.
const (
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 2 * time.Second
	DefaultRetryMaxDelay       = 30 * time.Second
	DefaultHistoryCapacity     = 100
	DefaultTrendWindow         = 60 * time.Second
	DefaultIssueWindow         = 10
	DefaultSampleInterval      = time.Second
	MinSampleInterval          = 500 * time.Millisecond
	MaxSampleInterval          = 2 * time.Second
	DefaultAnalyticsBufferSize = 256
	DefaultNATSSubject         = "arsession.events"
	DefaultNATSStream          = "ARSESSION"
	DefaultNATSTimeout         = 5 * time.Second
	DefaultMetricsListenAddr   = ":9464"
	DefaultDeviceProfile       = "full"
)

// EnvironmentDefaultApplier normalizes the deployment environment.
type EnvironmentDefaultApplier struct{}

func (e *EnvironmentDefaultApplier) Domain() string { return "environment" }

func (e *EnvironmentDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Environment == "" {
		cfg.Environment = EnvProduction
		return nil
	}
	// Unknown names are left untouched for Validate to report.
	if env := NormalizeEnvironment(string(cfg.Environment)); env != "" {
		cfg.Environment = env
	}
	return nil
}

// SessionDefaultApplier handles restart policy and requested options defaults.
type SessionDefaultApplier struct{}

func (s *SessionDefaultApplier) Domain() string { return "session" }

func (s *SessionDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Session.MaxRetries <= 0 {
		cfg.Session.MaxRetries = DefaultMaxRetries
	}
	if mode := NormalizeRetryBackoff(cfg.Session.RetryBackoff); mode != "" {
		cfg.Session.RetryBackoff = string(mode)
	} else {
		cfg.Session.RetryBackoff = string(RetryBackoffFixed)
	}
	if cfg.Session.RetryDelay <= 0 {
		cfg.Session.RetryDelay = Duration(DefaultRetryDelay)
	}
	if cfg.Session.RetryMaxDelay <= 0 {
		cfg.Session.RetryMaxDelay = Duration(DefaultRetryMaxDelay)
	}
	if cfg.Session.Options.isZero() {
		cfg.Session.Options = DefaultOptions()
	}
	return nil
}

// TrackingDefaultApplier handles analyzer defaults.
type TrackingDefaultApplier struct{}

func (t *TrackingDefaultApplier) Domain() string { return "tracking" }

func (t *TrackingDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Tracking.HistoryCapacity <= 0 {
		cfg.Tracking.HistoryCapacity = DefaultHistoryCapacity
	}
	if cfg.Tracking.TrendWindow <= 0 {
		cfg.Tracking.TrendWindow = Duration(DefaultTrendWindow)
	}
	if cfg.Tracking.IssueWindow <= 0 {
		cfg.Tracking.IssueWindow = DefaultIssueWindow
	}
	return nil
}

// PerformanceDefaultApplier handles monitor defaults. The sample interval is
// clamped into [MinSampleInterval, MaxSampleInterval].
type PerformanceDefaultApplier struct{}

func (p *PerformanceDefaultApplier) Domain() string { return "performance" }

func (p *PerformanceDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Performance.SampleInterval <= 0 {
		cfg.Performance.SampleInterval = Duration(DefaultSampleInterval)
	}
	cfg.Performance.SampleInterval = Duration(ClampSampleInterval(cfg.Performance.SampleInterval.Duration()))
	if cfg.Performance.HistoryCapacity <= 0 {
		cfg.Performance.HistoryCapacity = DefaultHistoryCapacity
	}
	if len(cfg.Performance.Thresholds) > 0 {
		normalized := make(map[Environment]Thresholds, len(cfg.Performance.Thresholds))
		for env, t := range cfg.Performance.Thresholds {
			if n := NormalizeEnvironment(string(env)); n != "" {
				env = n
			}
			normalized[env] = t
		}
		cfg.Performance.Thresholds = normalized
	}
	return nil
}

// ClampSampleInterval bounds d to the supported sampling cadence.
func ClampSampleInterval(d time.Duration) time.Duration {
	switch {
	case d < MinSampleInterval:
		return MinSampleInterval
	case d > MaxSampleInterval:
		return MaxSampleInterval
	default:
		return d
	}
}

// DeviceDefaultApplier handles simulated device defaults.
type DeviceDefaultApplier struct{}

func (d *DeviceDefaultApplier) Domain() string { return "device" }

func (d *DeviceDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Device.Profile == "" {
		cfg.Device.Profile = DefaultDeviceProfile
	}
	return nil
}

// AnalyticsDefaultApplier handles analytics pipeline defaults.
type AnalyticsDefaultApplier struct{}

func (a *AnalyticsDefaultApplier) Domain() string { return "analytics" }

func (a *AnalyticsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Analytics.BufferSize <= 0 {
		cfg.Analytics.BufferSize = DefaultAnalyticsBufferSize
	}
	if cfg.Analytics.NATS.Subject == "" {
		cfg.Analytics.NATS.Subject = DefaultNATSSubject
	}
	if cfg.Analytics.NATS.Stream == "" {
		cfg.Analytics.NATS.Stream = DefaultNATSStream
	}
	if cfg.Analytics.NATS.Timeout <= 0 {
		cfg.Analytics.NATS.Timeout = Duration(DefaultNATSTimeout)
	}
	return nil
}

// MetricsDefaultApplier handles Prometheus endpoint defaults.
type MetricsDefaultApplier struct{}

func (m *MetricsDefaultApplier) Domain() string { return "metrics" }

func (m *MetricsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = DefaultMetricsListenAddr
	}
	return nil
}

// LoggingDefaultApplier normalizes log level and format.
type LoggingDefaultApplier struct{}

func (l *LoggingDefaultApplier) Domain() string { return "logging" }

func (l *LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

// defaultAppliers lists appliers in application order.
func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		&EnvironmentDefaultApplier{},
		&SessionDefaultApplier{},
		&TrackingDefaultApplier{},
		&PerformanceDefaultApplier{},
		&DeviceDefaultApplier{},
		&AnalyticsDefaultApplier{},
		&MetricsDefaultApplier{},
		&LoggingDefaultApplier{},
	}
}

func applyDefaults(cfg *Config) error {
	for _, applier := range defaultAppliers() {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("apply %s defaults: %w", applier.Domain(), err)
		}
	}
	return nil
}

func (o OptionsConfig) isZero() bool {
	return len(o.PlaneDetection) == 0 &&
		o.SceneReconstruction == "" &&
		o.EnvironmentTexturing == "" &&
		len(o.FrameSemantics) == 0 &&
		!o.Audio &&
		!o.LightEstimation &&
		!o.Collaboration &&
		o.MaxTrackedImages == 0 &&
		len(o.ReferenceImages) == 0
}
