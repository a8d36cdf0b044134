package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

var cacheField string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the enrichment cache",
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <tenant> <contact>",
	Short: "Drop cached values for a contact (all fields unless --field is set)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		field := strings.ToLower(strings.TrimSpace(cacheField))
		if field != "" && !model.IsKnownField(field) {
			return eris.Errorf("unknown field %s", field)
		}

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Cache.Invalidate(ctx, args[0], args[1], field); err != nil {
			return eris.Wrap(err, "cache invalidate")
		}
		fmt.Fprintln(os.Stderr, "Cache invalidated.")
		return nil
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired cache entries once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		sw, ok := env.Cache.(sweeper)
		if !ok {
			fmt.Fprintf(os.Stderr, "Cache backend %q expires entries on its own.\n", cfg.Cache.Backend)
			return nil
		}
		n := sweepOnce(ctx, sw)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheInvalidateCmd.Flags().StringVar(&cacheField, "field", "", "only invalidate this field")
	cacheCmd.AddCommand(cacheInvalidateCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	rootCmd.AddCommand(cacheCmd)
}
