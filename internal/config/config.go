// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the tuner.
const (
	// Audio
	DefaultDeviceID      = MinDeviceID // System default input device
	DefaultSampleRate    = 44100       // CD-quality audio
	DefaultBufferSize    = 2048        // ~46 ms, two periods of the low E string
	DefaultInputChannels = 1           // Mono
	DefaultLowLatency    = false
	DefaultStartupDelay  = 200 * time.Millisecond

	// Detector
	DefaultMinFrequencyHz       = 70.0
	DefaultMaxFrequencyHz       = 1400.0
	DefaultNoiseFloorRMS        = 0.01
	DefaultConfidenceThreshold  = 0.6
	DefaultOctaveToleranceRatio = 0.1
	DefaultOctaveSearchDepth    = 20
	DefaultWindow               = "Hann"
	DefaultHighPassHz           = 0.0 // Off
	DefaultMethod               = "direct"

	// Tuner
	DefaultReferenceHz       = 440.0
	DefaultLowestNote        = "E1"
	DefaultHighestNote       = "C8"
	DefaultSmoothingFactor   = 0.5
	DefaultMedianWindow      = 5
	DefaultJumpResetCents    = 100.0
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultStarvationTimeout = 500 * time.Millisecond

	// Transport
	DefaultSendInterval     = 33 * time.Millisecond // ~30 Hz
	DefaultHTTPAddress      = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond

	// UI
	DefaultRefreshInterval = 50 * time.Millisecond

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MinBufferFrames = 256
	MaxBufferFrames = 16384
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:   DefaultDeviceID,
			SampleRate:    DefaultSampleRate,
			BufferSize:    DefaultBufferSize,
			InputChannels: DefaultInputChannels,
			LowLatency:    DefaultLowLatency,
			StartupDelay:  DefaultStartupDelay,
		},
		Detector: DetectorConfig{
			MinFrequencyHz:       DefaultMinFrequencyHz,
			MaxFrequencyHz:       DefaultMaxFrequencyHz,
			NoiseFloorRMS:        DefaultNoiseFloorRMS,
			ConfidenceThreshold:  DefaultConfidenceThreshold,
			OctaveToleranceRatio: DefaultOctaveToleranceRatio,
			OctaveSearchDepth:    DefaultOctaveSearchDepth,
			Window:               DefaultWindow,
			HighPassHz:           DefaultHighPassHz,
			Method:               DefaultMethod,
		},
		Tuner: TunerConfig{
			ReferenceHz:       DefaultReferenceHz,
			LowestNote:        DefaultLowestNote,
			HighestNote:       DefaultHighestNote,
			SmoothingFactor:   DefaultSmoothingFactor,
			MedianWindow:      DefaultMedianWindow,
			JumpResetCents:    DefaultJumpResetCents,
			PollInterval:      DefaultPollInterval,
			StarvationTimeout: DefaultStarvationTimeout,
		},
		Transport: TransportConfig{
			SendInterval:     DefaultSendInterval,
			WebSocketEnabled: false,
			HTTPAddress:      DefaultHTTPAddress,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		UI: UIConfig{
			Enabled:         true,
			RefreshInterval: DefaultRefreshInterval,
		},
	}
}
