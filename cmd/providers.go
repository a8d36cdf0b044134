package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

var providersTenant string

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect and toggle enrichment providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the effective provider catalog for a tenant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Registry.ListAll(ctx, providersTenant)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No providers configured.")
			return nil
		}
		formatProviders(cmd.OutOrStdout(), list)
		return nil
	},
}

func newToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <provider>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a provider for a tenant (global when --tenant is empty)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := initEngine(ctx, "enrich")
			if err != nil {
				return err
			}
			defer env.Close()

			p, err := env.Registry.SetEnabled(ctx, providersTenant, args[0], enabled)
			if err != nil {
				return err
			}
			formatProviders(cmd.OutOrStdout(), []model.EnrichmentProvider{*p})
			return nil
		},
	}
}

func formatProviders(out io.Writer, list []model.EnrichmentProvider) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCOPE\tENABLED\tPRIORITY\tCOST\tFIELDS\tAVG_MS\tSUCCESS")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t--------\t----\t------\t------\t-------")
	for _, p := range list {
		scope := "global"
		if p.TenantID != "" {
			scope = p.TenantID
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%.4f\t%s\t%.0f\t%.2f\n",
			p.ID,
			scope,
			p.Enabled,
			p.Priority,
			p.CostPerLookup,
			strings.Join(p.SupportedFields, ","),
			p.AvgLatencyMs,
			p.SuccessRate,
		)
	}
	_ = w.Flush()
}

func init() {
	providersCmd.PersistentFlags().StringVar(&providersTenant, "tenant", "", "tenant id (empty = global catalog)")
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(newToggleCmd("enable", true))
	providersCmd.AddCommand(newToggleCmd("disable", false))
	rootCmd.AddCommand(providersCmd)
}
