package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagchain/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective settings",
	Long: `Print the config file merged with the flags of this invocation.

Examples:
  jtag config
  jtag config save -c cmsisdap --frequency 1000000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective settings to the config file",
	Long: `Merge the flags of this invocation into the config file and write it back,
so later commands pick them up without the flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.Path(); err != nil {
				return err
			}
		}
		if err := settings.Save(path); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSaveCmd)
	rootCmd.AddCommand(configCmd)
}
