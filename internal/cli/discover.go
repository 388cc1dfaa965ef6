package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <domain>",
	Short: "Fetch and normalize a merchant's discovery profile",
	Long: `Fetch the merchant's discovery profile from its well-known path and print
the normalized result: services with their transport endpoints, capabilities
and payment handlers.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	d, err := a.ucpClient().Discover(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
