package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cortexos/cortex-go/internal/config"
)

// Config command flags
var (
	configShowJSON bool
	configInitPath string
)

// ConfigCmd is the parent command for configuration management.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  `Commands for inspecting and generating configuration files.`,
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  `Display the configuration after merging the config file over defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return err
		}

		if configShowJSON {
			printJSON(cfg)
			return nil
		}
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	},
}

// configInitCmd writes a default config file.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long:  `Write the default configuration to a YAML file as a starting point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configInitPath); err == nil {
			return fmt.Errorf("refusing to overwrite existing file %s", configInitPath)
		}
		if err := config.Save(config.Default(), configInitPath); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", configInitPath)
		return nil
	},
}

// configValidateCmd checks the config file.
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Check the configuration file for errors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(ConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			return err
		}
		fmt.Println("✓ Configuration is valid")
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolVarP(&configShowJSON, "json", "j", false, "Output as JSON")
	configInitCmd.Flags().StringVarP(&configInitPath, "path", "p", "cortex.yaml", "Destination file")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}
