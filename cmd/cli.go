package cmd

import (
	"fmt"
	"io"

	"tuner/internal/config"
	"tuner/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected on the command line.
const (
	CommandTune    = "tune"
	CommandList    = "list"
	CommandAnalyze = "analyze"
)

// Invocation is the parsed command line: which command to run and the
// configuration it runs with.
type Invocation struct {
	Command     string // empty after --help or --version
	Interactive bool   // list: pick a device in the terminal UI
	File        string // analyze: WAV file to read
	Config      *config.Config
}

type flagValues struct {
	configPath  string
	deviceID    int
	sampleRate  float64
	bufferSize  int
	channels    int
	lowLatency  bool
	referenceHz float64
	inputFile   string
	noUI        bool
	verbose     bool
	udpTarget   string
	interactive bool
}

// ParseArgs parses args (without the program name). Settings come from
// the YAML file named by --config, then the environment, then any flag
// given explicitly.
func ParseArgs(args []string, out io.Writer) (*Invocation, error) {
	buildInfo := build.GetBuildFlags()
	inv := &Invocation{}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.Command = CommandTune
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.Command = CommandList
			inv.Interactive = fv.interactive
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&fv.interactive, "interactive", "i", false,
		"Choose a device and sample rate, then start tuning with it")
	rootCmd.AddCommand(listCmd)

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Print the pitch of every frame of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.Command = CommandAnalyze
			inv.File = args[0]
			return nil
		},
	}
	rootCmd.AddCommand(analyzeCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&fv.configPath, "config", "",
		"Path to a YAML configuration file (default: ./config.yaml if present)")

	// Audio Device Configuration
	flags.IntVarP(&fv.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&fv.bufferSize, "buffer-size", "b", config.DefaultBufferSize,
		"Samples per analysis frame (affects latency and the lowest note)")
	flags.IntVarP(&fv.channels, "channels", "c", config.DefaultInputChannels,
		"Number of channels to open; only the first is analysed")
	flags.BoolVarP(&fv.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	flags.StringVar(&fv.inputFile, "input", "",
		"Tune from a WAV file instead of an input device")

	// Tuning
	flags.Float64VarP(&fv.referenceHz, "reference", "r", config.DefaultReferenceHz,
		"Reference pitch of A4 in Hz")

	// Output
	flags.BoolVar(&fv.noUI, "no-ui", false,
		"Log readings instead of showing the terminal gauge")
	flags.StringVar(&fv.udpTarget, "udp", "",
		"Send readings as UDP packets to host:port")

	// Debug Configuration
	flags.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if inv.Command == "" {
		return inv, nil
	}

	cfg, err := config.LoadConfig(fv.configPath)
	if err != nil {
		return nil, err
	}

	// Explicit flags win over the file and the environment.
	if flags.Changed("device") {
		cfg.Audio.InputDevice = fv.deviceID
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if flags.Changed("buffer-size") {
		cfg.Audio.BufferSize = fv.bufferSize
	}
	if flags.Changed("channels") {
		cfg.Audio.InputChannels = fv.channels
	}
	if flags.Changed("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if flags.Changed("input") {
		cfg.Audio.InputFile = fv.inputFile
	}
	if flags.Changed("reference") {
		cfg.Tuner.ReferenceHz = fv.referenceHz
	}
	if fv.noUI {
		cfg.UI.Enabled = false
	}
	if flags.Changed("udp") {
		cfg.Transport.UDPEnabled = fv.udpTarget != ""
		cfg.Transport.UDPTargetAddress = fv.udpTarget
	}
	if fv.verbose {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	inv.Config = cfg
	return inv, nil
}
