package cli

import (
	"fmt"

	"github.com/harun/shopagent/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults, the config file and SHOPAGENT_*
environment overrides are applied. Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, cfg.String())

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %v\n", e)
		}
		return fmt.Errorf("configuration has %d problem(s)", len(errs))
	}
	return nil
}
