package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

var healthReset string

var healthCmd = &cobra.Command{
	Use:   "health <tenant>",
	Short: "Show circuit breaker state per provider for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tenantID := args[0]

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		if healthReset != "" {
			if err := env.Health.Reset(ctx, tenantID, healthReset); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Circuit for %s reset.\n", healthReset)
		}

		list, err := env.Health.Snapshot(ctx, tenantID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No health records.")
			return nil
		}
		formatHealth(cmd.OutOrStdout(), list)
		return nil
	},
}

func formatHealth(out io.Writer, list []model.ProviderHealth) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tSTATE\tFAILURES\tSUCCESSES\tLAST_FAILURE\tOPENED")
	_, _ = fmt.Fprintln(w, "--------\t-----\t--------\t---------\t------------\t------")
	for _, h := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			h.ProviderID,
			h.CircuitState,
			h.FailureCount,
			h.SuccessCount,
			fmtOptTime(h.LastFailureAt),
			fmtOptTime(h.CircuitOpenedAt),
		)
	}
	_ = w.Flush()
}

func fmtOptTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func init() {
	healthCmd.Flags().StringVar(&healthReset, "reset", "", "force the named provider's circuit closed before printing")
	rootCmd.AddCommand(healthCmd)
}
