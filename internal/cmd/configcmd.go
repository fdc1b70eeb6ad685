package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/nimbusfs/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, config file, environment and
flags have been applied. Credentials are never part of it.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables nimbusfs reads",
	Args:  cobra.NoArgs,
	RunE:  runConfigEnv,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEnvCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(currentConfig()); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot encode configuration", err)
	}
	return enc.Close()
}

func runConfigEnv(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VARIABLE\tKEY")
	for _, spec := range config.EnvSpecs() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", spec.Name, spec.Path)
	}
	_, _ = fmt.Fprintf(w, "%s_READONLY\treadonly\n", config.EnvPrefix)
	return w.Flush()
}
