// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"tuner/internal/analysis"
	"tuner/internal/audio"
	applog "tuner/internal/log"
	"tuner/internal/note"
	"tuner/internal/pitch"
	"tuner/internal/tuner"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Shorthand for log_level: debug.
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Audio input settings.
	Detector  DetectorConfig  `yaml:"detector"`  // Pitch detection settings.
	Tuner     TunerConfig     `yaml:"tuner"`     // Note mapping and smoothing.
	Transport TransportConfig `yaml:"transport"` // Reading feeds.
	Metrics   MetricsConfig   `yaml:"metrics"`   // Prometheus exposition.
	UI        UIConfig        `yaml:"ui"`        // Terminal gauge.
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice   int           `yaml:"input_device"`   // PortAudio device index for audio input (-1 for default).
	SampleRate    float64       `yaml:"sample_rate"`    // Sample rate in Hz (e.g., 44100, 48000).
	BufferSize    int           `yaml:"buffer_size"`    // Frames per buffer, which is also the analysis frame.
	InputChannels int           `yaml:"input_channels"` // Channels to open; only the first is analysed.
	LowLatency    bool          `yaml:"low_latency"`    // Request low latency settings from PortAudio device.
	StartupDelay  time.Duration `yaml:"startup_delay"`  // Frames captured during this interval after start are discarded.
	InputFile     string        `yaml:"input_file"`     // Replay this WAV file instead of opening a device.
}

// DetectorConfig holds the pitch estimator settings.
type DetectorConfig struct {
	MinFrequencyHz       float64 `yaml:"min_frequency_hz"`       // Lowest detectable fundamental.
	MaxFrequencyHz       float64 `yaml:"max_frequency_hz"`       // Highest detectable fundamental.
	NoiseFloorRMS        float64 `yaml:"noise_floor_rms"`        // Frames quieter than this are silence.
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`   // Minimum correlation peak for a pitch, 0..1.
	OctaveToleranceRatio float64 `yaml:"octave_tolerance_ratio"` // How far below the best peak a shorter period may score.
	OctaveSearchDepth    int     `yaml:"octave_search_depth"`    // Largest divisor tried when correcting octave errors.
	Window               string  `yaml:"window"`                 // Analysis window ("Hann", "Hamming", "Blackman", ...).
	HighPassHz           float64 `yaml:"highpass_hz"`            // Rumble filter cutoff, 0 to disable.
	Method               string  `yaml:"method"`                 // Autocorrelation method ("direct" or "fft").
}

// TunerConfig holds note mapping and smoothing settings.
type TunerConfig struct {
	ReferenceHz       float64       `yaml:"reference_hz"`       // Pitch of A4.
	LowestNote        string        `yaml:"lowest_note"`        // Lowest note reported (e.g., "E1").
	HighestNote       string        `yaml:"highest_note"`       // Highest note reported (e.g., "C8").
	SmoothingFactor   float64       `yaml:"smoothing_factor"`   // EMA weight of the history, 0 disables.
	MedianWindow      int           `yaml:"median_window"`      // Estimates in the running median, 1 disables.
	JumpResetCents    float64       `yaml:"jump_reset_cents"`   // A larger jump restarts smoothing.
	PollInterval      time.Duration `yaml:"poll_interval"`      // Longest wait for a frame.
	StarvationTimeout time.Duration `yaml:"starvation_timeout"` // Frame gap reported as silence.
}

// TransportConfig holds settings related to sending readings to displays.
type TransportConfig struct {
	SendInterval     time.Duration `yaml:"send_interval"`      // Minimum spacing of pushed readings.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve readings as JSON on /ws.
	HTTPAddress      string        `yaml:"http_address"`       // Listen address for /ws and /metrics.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending readings over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
	LogReadings      bool          `yaml:"log_readings"`       // Log every pushed reading.
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Serve /metrics on transport.http_address.
}

// UIConfig controls the terminal gauge.
type UIConfig struct {
	Enabled         bool          `yaml:"enabled"`          // Show the gauge; otherwise log readings.
	RefreshInterval time.Duration `yaml:"refresh_interval"` // Redraw period.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		return fmt.Errorf("log_level '%s' is not one of debug, info, warn, error", c.LogLevel)
	}

	// Audio Validation
	a := c.Audio
	switch {
	case a.InputDevice < MinDeviceID:
		return fmt.Errorf("audio.input_device must be %d or a device index, got %d", MinDeviceID, a.InputDevice)
	case a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate:
		return fmt.Errorf("audio.sample_rate must be between %d and %d Hz, got %g", MinSampleRate, MaxSampleRate, a.SampleRate)
	case a.BufferSize < MinBufferFrames || a.BufferSize > MaxBufferFrames:
		return fmt.Errorf("audio.buffer_size must be between %d and %d, got %d", MinBufferFrames, MaxBufferFrames, a.BufferSize)
	case a.InputChannels < 1:
		return fmt.Errorf("audio.input_channels must be at least 1, got %d", a.InputChannels)
	case a.StartupDelay < 0:
		return fmt.Errorf("audio.startup_delay must not be negative, got %v", a.StartupDelay)
	}

	// Detector Validation
	if _, err := c.ConditionerOptions(); err != nil {
		return err
	}
	if _, err := c.PitchConfig(); err != nil {
		return err
	}

	// Tuner Validation
	if _, _, err := c.NoteRange(); err != nil {
		return err
	}
	t := c.Tuner
	switch {
	case !(t.ReferenceHz > 0):
		return fmt.Errorf("tuner.reference_hz must be positive, got %g", t.ReferenceHz)
	case t.SmoothingFactor < 0 || t.SmoothingFactor >= 1:
		return fmt.Errorf("tuner.smoothing_factor must be in [0, 1), got %g", t.SmoothingFactor)
	case t.MedianWindow < 1:
		return fmt.Errorf("tuner.median_window must be at least 1, got %d", t.MedianWindow)
	case t.JumpResetCents < 0:
		return fmt.Errorf("tuner.jump_reset_cents must not be negative, got %g", t.JumpResetCents)
	case t.PollInterval <= 0:
		return fmt.Errorf("tuner.poll_interval must be positive, got %v", t.PollInterval)
	case t.StarvationTimeout < 0:
		return fmt.Errorf("tuner.starvation_timeout must not be negative, got %v", t.StarvationTimeout)
	}

	// Transport Validation
	tr := c.Transport
	if tr.SendInterval < 0 {
		return fmt.Errorf("transport.send_interval must not be negative, got %v", tr.SendInterval)
	}
	if tr.UDPEnabled {
		if tr.UDPTargetAddress == "" {
			return errors.New("transport.udp_target_address must be set when UDP is enabled")
		}
		if _, _, err := net.SplitHostPort(tr.UDPTargetAddress); err != nil {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid: %w", tr.UDPTargetAddress, err)
		}
		if tr.UDPSendInterval <= 0 {
			return errors.New("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if (tr.WebSocketEnabled || c.Metrics.Enabled) && tr.HTTPAddress == "" {
		return errors.New("transport.http_address must be set when the WebSocket feed or metrics are enabled")
	}

	// UI Validation
	if c.UI.Enabled && c.UI.RefreshInterval <= 0 {
		return fmt.Errorf("ui.refresh_interval must be positive, got %v", c.UI.RefreshInterval)
	}

	return nil
}

// Level returns the effective log level; Debug wins over log_level.
func (c *Config) Level() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, ok := applog.ParseLevel(c.LogLevel)
	if !ok {
		return applog.LevelInfo
	}
	return level
}

// applyEnvOverrides lets ENV_* variables replace file values, for running
// in containers without a config file.
func (c *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Infof("configuration: Overriding log_level from env: %s", val)
	}
	// ENV_INPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_INPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = iVal
			applog.Infof("configuration: Overriding audio.input_device from env: %d", iVal)
		}
	}
	// ENV_REFERENCE_HZ
	if val, ok := os.LookupEnv("ENV_REFERENCE_HZ"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			c.Tuner.ReferenceHz = fVal
			applog.Infof("configuration: Overriding tuner.reference_hz from env: %g", fVal)
		}
	}

	// ENV_HTTP_{...}, ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_HTTP_ADDRESS
	if val, ok := os.LookupEnv("ENV_HTTP_ADDRESS"); ok {
		c.Transport.HTTPAddress = val
		applog.Infof("configuration: Overriding transport.http_address from env: %s", val)
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			applog.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			applog.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

// The helpers below translate the file layout into the settings each
// component constructor takes.

// ConditionerOptions returns the conditioning settings.
func (c *Config) ConditionerOptions() (analysis.ConditionerOptions, error) {
	window, err := analysis.ParseWindowFunc(c.Detector.Window)
	if err != nil {
		return analysis.ConditionerOptions{}, fmt.Errorf("detector.window: %w", err)
	}
	hp := c.Detector.HighPassHz
	if hp < 0 || hp >= c.Audio.SampleRate/2 {
		return analysis.ConditionerOptions{}, fmt.Errorf("detector.highpass_hz must be in [0, %g), got %g", c.Audio.SampleRate/2, hp)
	}
	return analysis.ConditionerOptions{Window: window, HighPassHz: hp}, nil
}

// PitchConfig returns the validated estimator settings.
func (c *Config) PitchConfig() (pitch.Config, error) {
	method, err := pitch.ParseMethod(c.Detector.Method)
	if err != nil {
		return pitch.Config{}, fmt.Errorf("detector.method: %w", err)
	}
	d := c.Detector
	pc := pitch.Config{
		SampleRate:           c.Audio.SampleRate,
		FrameSize:            c.Audio.BufferSize,
		MinFrequencyHz:       d.MinFrequencyHz,
		MaxFrequencyHz:       d.MaxFrequencyHz,
		NoiseFloorRMS:        d.NoiseFloorRMS,
		ConfidenceThreshold:  d.ConfidenceThreshold,
		OctaveToleranceRatio: d.OctaveToleranceRatio,
		OctaveSearchDepth:    d.OctaveSearchDepth,
		Method:               method,
	}
	if err := pc.Validate(); err != nil {
		return pitch.Config{}, fmt.Errorf("detector: %w", err)
	}
	return pc, nil
}

// NoteRange returns the playable range as note numbers.
func (c *Config) NoteRange() (lowest, highest int, err error) {
	if lowest, err = note.ParseNote(c.Tuner.LowestNote); err != nil {
		return 0, 0, fmt.Errorf("tuner.lowest_note: %w", err)
	}
	if highest, err = note.ParseNote(c.Tuner.HighestNote); err != nil {
		return 0, 0, fmt.Errorf("tuner.highest_note: %w", err)
	}
	if lowest > highest {
		return 0, 0, fmt.Errorf("tuner.lowest_note %s is above tuner.highest_note %s", c.Tuner.LowestNote, c.Tuner.HighestNote)
	}
	return lowest, highest, nil
}

// Session returns the tuner loop settings.
func (c *Config) Session() tuner.Config {
	return tuner.Config{
		PollInterval:      c.Tuner.PollInterval,
		StarvationTimeout: c.Tuner.StarvationTimeout,
		SendInterval:      c.Transport.SendInterval,
		MedianWindow:      c.Tuner.MedianWindow,
		SmoothingFactor:   c.Tuner.SmoothingFactor,
		JumpResetCents:    c.Tuner.JumpResetCents,
	}
}

// Capture returns the input stream settings.
func (c *Config) Capture() audio.CaptureConfig {
	return audio.CaptureConfig{
		DeviceID:     c.Audio.InputDevice,
		SampleRate:   c.Audio.SampleRate,
		FrameSize:    c.Audio.BufferSize,
		Channels:     c.Audio.InputChannels,
		LowLatency:   c.Audio.LowLatency,
		StartupDelay: c.Audio.StartupDelay,
	}
}

// Pipeline builds the condition, estimate and map stages.
func (c *Config) Pipeline() (*tuner.Pipeline, error) {
	pc, err := c.PitchConfig()
	if err != nil {
		return nil, err
	}
	opts, err := c.ConditionerOptions()
	if err != nil {
		return nil, err
	}
	lowest, highest, err := c.NoteRange()
	if err != nil {
		return nil, err
	}
	return tuner.BuildPipeline(pc, opts, c.Tuner.ReferenceHz, lowest, highest)
}
