package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Environment Environment       `yaml:"environment"`
	Session     SessionConfig     `yaml:"session"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Performance PerformanceConfig `yaml:"performance"`
	Device      DeviceConfig      `yaml:"device"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SessionConfig controls restart behavior and the requested AR configuration.
type SessionConfig struct {
	MaxRetries    int           `yaml:"max_restart_attempts"`
	RetryBackoff  string        `yaml:"retry_backoff"`
	RetryDelay    Duration      `yaml:"retry_delay"`
	RetryMaxDelay Duration      `yaml:"max_retry_delay"`
	Options       OptionsConfig `yaml:"options"`
}

// OptionsConfig is the requested AR configuration as written in YAML.
// It is turned into an immutable capability.Options at startup.
type OptionsConfig struct {
	PlaneDetection       []string `yaml:"plane_detection,omitempty"`       // horizontal, vertical
	SceneReconstruction  string   `yaml:"scene_reconstruction,omitempty"`  // none, mesh, mesh_with_classification
	EnvironmentTexturing string   `yaml:"environment_texturing,omitempty"` // none, manual, automatic
	FrameSemantics       []string `yaml:"frame_semantics,omitempty"`       // person_segmentation, person_segmentation_with_depth, body_detection, scene_depth
	Audio                bool     `yaml:"audio,omitempty"`
	LightEstimation      bool     `yaml:"light_estimation"`
	Collaboration        bool     `yaml:"collaboration,omitempty"`
	MaxTrackedImages     int      `yaml:"max_tracked_images,omitempty"`
	ReferenceImages      []string `yaml:"reference_images,omitempty"`
}

// TrackingConfig controls the tracking quality analyzer.
type TrackingConfig struct {
	HistoryCapacity int      `yaml:"history_capacity"`
	TrendWindow     Duration `yaml:"trend_window"`
	IssueWindow     int      `yaml:"issue_window"`
}

// PerformanceConfig controls the performance monitor.
type PerformanceConfig struct {
	SampleInterval  Duration                   `yaml:"sample_interval"`
	HistoryCapacity int                        `yaml:"history_capacity"`
	Thresholds      map[Environment]Thresholds `yaml:"thresholds,omitempty"`
}

// DeviceConfig describes the simulated device used by the CLI.
type DeviceConfig struct {
	Profile string   `yaml:"profile"`           // full, lidar-less, basic, unsupported
	Disable []string `yaml:"disable,omitempty"` // capability names removed from the profile
}

// AnalyticsConfig controls the fire-and-forget analytics pipeline.
type AnalyticsConfig struct {
	Enabled    bool       `yaml:"enabled"`
	BufferSize int        `yaml:"buffer_size"`
	StorePath  string     `yaml:"store_path,omitempty"`
	NATS       NATSConfig `yaml:"nats"`
}

// NATSConfig configures the JetStream analytics sink. An empty URL disables it.
type NATSConfig struct {
	URL     string   `yaml:"url,omitempty"`
	Subject string   `yaml:"subject,omitempty"`
	Stream  string   `yaml:"stream,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Duration is a time.Duration that reads and writes YAML as "2s", "500ms".
type Duration time.Duration

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration from the specified file, applies defaults and validates it.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML content (after ${VAR} expansion), applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Session.Options = DefaultOptions()
	_ = applyDefaults(cfg)
	return cfg
}

// DefaultOptions is the requested AR configuration used when none is configured.
func DefaultOptions() OptionsConfig {
	return OptionsConfig{
		PlaneDetection:       []string{"horizontal", "vertical"},
		SceneReconstruction:  "mesh",
		EnvironmentTexturing: "automatic",
		FrameSemantics:       []string{"person_segmentation_with_depth"},
		LightEstimation:      true,
	}
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.Environment = EnvDevelopment
	example.Analytics.Enabled = true
	example.Analytics.StorePath = "./arsession-events.db"
	example.Analytics.NATS = NATSConfig{
		URL:     "${ARSESSION_NATS_URL}",
		Subject: "arsession.events",
		Stream:  "ARSESSION",
	}
	example.Metrics = MetricsConfig{Enabled: true, ListenAddr: ":9464"}
	example.Performance.Thresholds = map[Environment]Thresholds{
		EnvProduction: {MemoryWarningMB: 750},
	}

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
