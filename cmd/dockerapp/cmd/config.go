package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/dockerapp/internal/config"
	"github.com/psantana5/dockerapp/internal/launch"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration inspection",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and environment
variables have been applied, plus the run mode it selects.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "yaml", "output format: yaml or json")
}

type effectiveConfig struct {
	Mode   string        `json:"mode" yaml:"mode"`
	Source string        `json:"source,omitempty" yaml:"source,omitempty"`
	Config config.Config `json:"config" yaml:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return writeConfig(cmd.OutOrStdout(), cfg, configOutput)
}

func writeConfig(w io.Writer, cfg config.Config, format string) error {
	out := effectiveConfig{
		Mode:   launch.Select(cfg).Name(),
		Source: cfg.ConfigFile,
		Config: cfg,
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case "yaml":
		data, err := yaml.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Fprint(w, string(data))
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
	return nil
}
