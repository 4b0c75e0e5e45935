package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/OpenTraceLab/jtagchain/internal/config"
	"github.com/OpenTraceLab/jtagchain/pkg/cable"
	"github.com/OpenTraceLab/jtagchain/pkg/chain"
)

var (
	// Global flags
	verbose    bool
	configPath string
	cableName  string
	cableArgs  []string
	frequency  int
	bsdlDirs   []string
	logLevel   string

	// settings is the config file merged with the flags above.
	settings *config.Config
	logger   = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "jtag",
	Short: "JTAG chain controller",
	Long: `Drive a JTAG chain through a cable: reset the TAP controllers, detect the
parts, select instructions and shift instruction and data registers.

Settings are read from the config file first; flags override them.

Examples:
  jtag interfaces                                    # List cable drivers and attached adapters
  jtag detect -c sim -p parts=0x4BA00477/4,bypass/5  # Detect a simulated chain
  jtag shift -c sim --bsdl bsdl/ -i IDCODE           # Read IDCODEs through the instruction
  jtag parse device.bsd                              # Show a BSDL part description`,
	Version:           "0.9.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.StringVar(&configPath, "config", "", "config file (default ~/.config/jtagchain/config.json)")
	flags.StringVarP(&cableName, "cable", "c", "sim", "cable driver (see 'jtag interfaces')")
	flags.StringArrayVarP(&cableArgs, "param", "p", nil, "cable parameter key=value (repeatable)")
	flags.IntVar(&frequency, "frequency", 0, "TCK frequency in Hz (0 keeps the cable default)")
	flags.StringSliceVar(&bsdlDirs, "bsdl", nil, "directories searched for BSDL files")
	flags.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
}

func initLogger(cmd *cobra.Command, level logrus.Level) {
	logger.SetFormatter(&prefixed.TextFormatter{
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
	})
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)
	cable.SetLogger(logger)
	chain.SetLogger(logger)
}

// loadSettings reads the config file and applies the flags the user set.
func loadSettings(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("cable") {
		cfg.Cable = cableName
	}
	if flags.Changed("param") {
		p, err := cable.ParseParams(cableArgs)
		if err != nil {
			return err
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		for k, v := range p {
			cfg.Params[k] = v
		}
	}
	if flags.Changed("frequency") {
		cfg.Frequency = frequency
	}
	if flags.Changed("bsdl") {
		cfg.BSDLDirs = bsdlDirs
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	} else if verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	initLogger(cmd, cfg.Level())
	settings = cfg
	return nil
}

// openChain opens the configured cable with the BSDL repository loaded and
// the configured frequency applied.
func openChain() (*chain.Chain, error) {
	repo := chain.NewMemoryRepository()
	for _, dir := range settings.BSDLDirs {
		if err := repo.LoadDir(dir); err != nil {
			return nil, fmt.Errorf("load BSDL files from %s: %w", dir, err)
		}
	}
	logger.Debugf("%d BSDL description(s) loaded", repo.Len())

	ch, err := chain.Open(nil, settings.Cable, cable.Params(settings.Params), repo)
	if err != nil {
		return nil, fmt.Errorf("open cable %s: %w", settings.Cable, err)
	}
	if err := ch.SetLimits(settings.Limits()); err != nil {
		ch.Disconnect()
		return nil, err
	}
	if settings.Frequency > 0 {
		if _, err := ch.SetFrequency(settings.Frequency); err != nil {
			ch.Disconnect()
			return nil, fmt.Errorf("set frequency: %w", err)
		}
	}
	if err := ch.TestCable(); err != nil {
		ch.Disconnect()
		return nil, fmt.Errorf("cable self-test: %w", err)
	}
	if verbose {
		info := ch.Cable().Info()
		logger.WithFields(logrus.Fields{
			"driver": info.Driver,
			"name":   info.Name,
			"freq":   ch.GetFrequency(),
		}).Info("cable opened")
	}
	return ch, nil
}

// detectChain opens the cable and detects the parts. An empty chain is
// reported on out and returns a nil chain without error.
func detectChain(cmd *cobra.Command) (*chain.Chain, error) {
	ch, err := openChain()
	if err != nil {
		return nil, err
	}
	if _, err := ch.Detect(); err != nil {
		ch.Disconnect()
		if errors.Is(err, chain.ErrNoPartsDetected) {
			fmt.Fprintln(cmd.OutOrStdout(), "No parts detected.")
			return nil, nil
		}
		return nil, fmt.Errorf("detect: %w", err)
	}
	return ch, nil
}
