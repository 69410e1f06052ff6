package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Detector DetectorConfig `yaml:"detector"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Meter    MeterConfig    `yaml:"meter"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	Mock     MockConfig     `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	Buffer   int    `yaml:"buffer"` // samples channel capacity
}

// DetectorConfig contains the flow detector tuning knobs.
type DetectorConfig struct {
	NoiseThreshold         float64 `yaml:"noise_threshold"`          // minimum displacement between accepted points
	OutlierFactor          float64 `yaml:"outlier_factor"`           // outlier distance in multiples of noise_threshold
	MinCycleForFit         float64 `yaml:"min_cycle_for_fit"`        // revolutions of travel required before (re)fitting
	MaxConsecutiveOutliers int     `yaml:"max_consecutive_outliers"` // outliers in a row that count as drift
}

// SensorConfig contains the raw sample validity limits.
type SensorConfig struct {
	SaturationLimit int16   `yaml:"saturation_limit"`
	FlatLineSamples int     `yaml:"flat_line_samples"` // consecutive x=0,y=0 readings of a dead sensor
	OutlierJump     float64 `yaml:"outlier_jump"` // 0 disables jump detection
}

// MeterConfig contains volume conversion and display parameters.
type MeterConfig struct {
	LitersPerPulse float64 `yaml:"liters_per_pulse"`
	TracePoints    int     `yaml:"trace_points"`
	EventHistory   int     `yaml:"event_history"`
}

// StorageConfig contains the event log location. An empty path disables it.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig contains the prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig contains logger parameters.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"` // human readable output instead of JSON
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	CenterX    float64       `yaml:"center_x"`
	CenterY    float64       `yaml:"center_y"`
	RadiusX    float64       `yaml:"radius_x"`
	RadiusY    float64       `yaml:"radius_y"`
	Tilt       float64       `yaml:"tilt"`        // degrees
	Noise      float64       `yaml:"noise"`       // peak noise in sensor units
	FlowRate   float64       `yaml:"flow_rate"`   // indicator revolutions per second
	GlitchRate float64       `yaml:"glitch_rate"` // probability of a non-Ok sample
	SampleRate time.Duration `yaml:"sample_rate"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
			Buffer:   256,
		},
		Detector: DefaultDetector(),
		Sensor: SensorConfig{
			SaturationLimit: 4095,
			FlatLineSamples: 50,
			OutlierJump:     0,
		},
		Meter: MeterConfig{
			LitersPerPulse: 0.5,
			TracePoints:    512,
			EventHistory:   64,
		},
		Storage: StorageConfig{
			Path: "",
		},
		Metrics: MetricsConfig{
			Listen: "",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Mock: MockConfig{
			CenterX:    -120,
			CenterY:    80,
			RadiusX:    24,
			RadiusY:    16,
			Tilt:       20,
			Noise:      1,
			FlowRate:   0.5,
			GlitchRate: 0,
			SampleRate: 10 * time.Millisecond, // 100 Hz
		},
	}
}

// DefaultDetector returns the detector tuning used by Default.
func DefaultDetector() DetectorConfig {
	return DetectorConfig{
		NoiseThreshold:         3,
		OutlierFactor:          2,
		MinCycleForFit:         0.6,
		MaxConsecutiveOutliers: 20,
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.Buffer == 0 {
		c.Serial.Buffer = def.Serial.Buffer
	}

	c.Detector.EnsureDefaults()

	if c.Sensor.SaturationLimit == 0 {
		c.Sensor.SaturationLimit = def.Sensor.SaturationLimit
	}
	if c.Sensor.FlatLineSamples == 0 {
		c.Sensor.FlatLineSamples = def.Sensor.FlatLineSamples
	}

	if c.Meter.LitersPerPulse == 0 {
		c.Meter.LitersPerPulse = def.Meter.LitersPerPulse
	}
	if c.Meter.TracePoints == 0 {
		c.Meter.TracePoints = def.Meter.TracePoints
	}
	if c.Meter.EventHistory == 0 {
		c.Meter.EventHistory = def.Meter.EventHistory
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.RadiusX == 0 {
		c.Mock.RadiusX = def.Mock.RadiusX
	}
	if c.Mock.RadiusY == 0 {
		c.Mock.RadiusY = def.Mock.RadiusY
	}
}

// EnsureDefaults fills zero tuning knobs from DefaultDetector.
func (d *DetectorConfig) EnsureDefaults() {
	def := DefaultDetector()

	if d.NoiseThreshold == 0 {
		d.NoiseThreshold = def.NoiseThreshold
	}
	if d.OutlierFactor == 0 {
		d.OutlierFactor = def.OutlierFactor
	}
	if d.MinCycleForFit == 0 {
		d.MinCycleForFit = def.MinCycleForFit
	}
	if d.MaxConsecutiveOutliers == 0 {
		d.MaxConsecutiveOutliers = def.MaxConsecutiveOutliers
	}
}
