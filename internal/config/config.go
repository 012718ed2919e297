// Package config loads the controller's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/sous-vide/internal/gpio"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/sous-vide.yaml"

type Config struct {
	Files         FilesConfig    `yaml:"files"`
	PID           PIDConfig      `yaml:"pid"`
	Control       ControlConfig  `yaml:"control"`
	Hardware      HardwareConfig `yaml:"hardware"`
	Autotune      AutotuneConfig `yaml:"autotune"`
	MQTT          MQTTConfig     `yaml:"mqtt"`
	HTTP          HTTPConfig     `yaml:"http"`
	Log           LogConfig      `yaml:"log"`
	WatchCommands bool           `yaml:"watch_commands"`
}

type FilesConfig struct {
	TemperatureFile string `yaml:"temperature_file"`
	SetpointFile    string `yaml:"setpoint_file"`
	CommandDir      string `yaml:"command_dir"`
	StatusFileName  string `yaml:"status_file_name"`
	StartFileName   string `yaml:"start_file_name"`
	StopFileName    string `yaml:"stop_file_name"`
	UID             int    `yaml:"uid"`
	GID             int    `yaml:"gid"`
}

// StatusPath is the status file inside the command directory.
func (f FilesConfig) StatusPath() string { return filepath.Join(f.CommandDir, f.StatusFileName) }

// StartPath is the start command flag inside the command directory.
func (f FilesConfig) StartPath() string { return filepath.Join(f.CommandDir, f.StartFileName) }

// StopPath is the stop command flag inside the command directory.
func (f FilesConfig) StopPath() string { return filepath.Join(f.CommandDir, f.StopFileName) }

type PIDConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

type ControlConfig struct {
	WindowSize           time.Duration `yaml:"window_size"`
	AlarmInterval        time.Duration `yaml:"alarm_interval"`
	CommandCheckInterval time.Duration `yaml:"command_check_interval"`
	SetpointBand         float64       `yaml:"setpoint_band"`
}

type HardwareConfig struct {
	Chip           string `yaml:"chip"`
	HeaterPin      int    `yaml:"heater_pin"`
	WaterSensorPin int    `yaml:"water_sensor_pin"`
	PumpPin        int    `yaml:"pump_pin"`
}

type AutotuneConfig struct {
	NoiseBand           float64       `yaml:"noise_band"`
	OutputStep          float64       `yaml:"output_step"`
	Lookback            time.Duration `yaml:"lookback"`
	StableTimeGoal      time.Duration `yaml:"stable_time_goal"`
	StabilizationOutput float64       `yaml:"stabilization_output"`
	CheckInterval       time.Duration `yaml:"check_interval"`
	MaxAttempts         int           `yaml:"max_attempts"`
	MaxDuration         time.Duration `yaml:"max_duration"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Dir     string `yaml:"dir"`
	Datalog bool   `yaml:"datalog"`
}

// Default returns the built-in configuration. Values that are absent from a
// loaded file keep these defaults.
func Default() Config {
	return Config{
		Files: FilesConfig{
			TemperatureFile: "/var/souspi/temptracker.dat",
			SetpointFile:    "/var/souspi/spsetpoint",
			CommandDir:      "/var/souspi",
			StatusFileName:  "status.json",
			StartFileName:   "start",
			StopFileName:    "stop",
			UID:             -1,
			GID:             -1,
		},
		PID: PIDConfig{Kp: 174.81, Ki: 29.80, Kd: 256.32},
		Control: ControlConfig{
			WindowSize:           10 * time.Second,
			AlarmInterval:        time.Second,
			CommandCheckInterval: 2 * time.Second,
			SetpointBand:         0.5,
		},
		Hardware: HardwareConfig{
			Chip:           "gpiochip0",
			HeaterPin:      gpio.DefaultPins.Heater,
			WaterSensorPin: gpio.DefaultPins.Water,
			PumpPin:        gpio.DefaultPins.Pump,
		},
		Autotune: AutotuneConfig{
			NoiseBand:           1,
			OutputStep:          50,
			Lookback:            20 * time.Second,
			StableTimeGoal:      100 * time.Second,
			StabilizationOutput: 600,
			CheckInterval:       time.Second,
			MaxDuration:         time.Hour,
		},
		MQTT: MQTTConfig{ClientID: "sous-vide", Topic: "kitchen/sous-vide"},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Dir: "/var/log/sous-vide"},

		WatchCommands: true,
	}
}

// Load reads path on top of Default() and validates the result.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML on top of Default() and validates the result.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Files.TemperatureFile == "" {
		return fmt.Errorf("files.temperature_file is required")
	}
	if c.Files.SetpointFile == "" {
		return fmt.Errorf("files.setpoint_file is required")
	}
	if c.Files.CommandDir == "" {
		return fmt.Errorf("files.command_dir is required")
	}
	if c.Files.StatusFileName == "" || c.Files.StartFileName == "" || c.Files.StopFileName == "" {
		return fmt.Errorf("files.status_file_name, start_file_name and stop_file_name must be set")
	}
	if c.Files.StartFileName == c.Files.StopFileName {
		return fmt.Errorf("files.start_file_name and files.stop_file_name must differ")
	}

	if c.PID.Kp < 0 || c.PID.Ki < 0 || c.PID.Kd < 0 {
		return fmt.Errorf("pid gains must be >= 0")
	}

	if c.Control.WindowSize <= 0 {
		return fmt.Errorf("control.window_size must be > 0")
	}
	if c.Control.AlarmInterval < 0 {
		return fmt.Errorf("control.alarm_interval must be >= 0")
	}
	if c.Control.CommandCheckInterval < 0 {
		return fmt.Errorf("control.command_check_interval must be >= 0")
	}
	if c.Control.SetpointBand < 0 {
		return fmt.Errorf("control.setpoint_band must be >= 0")
	}

	h := c.Hardware
	if h.Chip == "" {
		return fmt.Errorf("hardware.chip is required")
	}
	if h.HeaterPin < 0 || h.WaterSensorPin < 0 || h.PumpPin < 0 {
		return fmt.Errorf("hardware pins must be >= 0")
	}
	if h.HeaterPin == h.WaterSensorPin || h.HeaterPin == h.PumpPin || h.WaterSensorPin == h.PumpPin {
		return fmt.Errorf("hardware pins must be distinct")
	}

	a := c.Autotune
	if a.NoiseBand <= 0 {
		return fmt.Errorf("autotune.noise_band must be > 0")
	}
	if a.OutputStep <= 0 {
		return fmt.Errorf("autotune.output_step must be > 0")
	}
	if a.Lookback <= 0 {
		return fmt.Errorf("autotune.lookback must be > 0")
	}
	if a.StableTimeGoal < 0 {
		return fmt.Errorf("autotune.stable_time_goal must be >= 0")
	}
	if a.CheckInterval <= 0 {
		return fmt.Errorf("autotune.check_interval must be > 0")
	}
	if a.MaxAttempts < 0 {
		return fmt.Errorf("autotune.max_attempts must be >= 0")
	}
	if a.MaxDuration < 0 {
		return fmt.Errorf("autotune.max_duration must be >= 0")
	}
	maxOut := float64(c.Control.WindowSize.Milliseconds())
	if a.StabilizationOutput < 0 || a.StabilizationOutput > maxOut {
		return fmt.Errorf("autotune.stabilization_output must be between 0 and %g (window_size in ms)", maxOut)
	}

	return nil
}
