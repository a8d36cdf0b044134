package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage per-tenant waterfall configs",
}

var configGetCmd = &cobra.Command{
	Use:   "get <tenant> <field>",
	Short: "Print the effective waterfall config and its source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		wc, src, err := env.Configs.Get(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "source: %s\n", src)
		return printJSON(cmd, wc)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <tenant> <field>",
	Short: "Store a tenant waterfall config; unset flags keep the effective value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		wc, _, err := env.Configs.Get(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		applyConfigFlags(cmd, &wc)

		saved, err := env.Configs.Put(ctx, wc)
		if err != nil {
			return err
		}
		return printJSON(cmd, saved)
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <tenant> <field>",
	Short: "Remove a tenant waterfall config so the field falls back to defaults",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Configs.Delete(ctx, args[0], args[1])
	},
}

// applyConfigFlags copies the flags the user set onto wc.
func applyConfigFlags(cmd *cobra.Command, wc *model.WaterfallConfig) {
	flags := cmd.Flags()
	if flags.Changed("providers") {
		order, _ := flags.GetStringSlice("providers")
		wc.ProviderOrder = order
	}
	if flags.Changed("max-attempts") {
		wc.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if flags.Changed("timeout-ms") {
		wc.TimeoutMs, _ = flags.GetInt("timeout-ms")
	}
	if flags.Changed("min-confidence") {
		wc.MinConfidence, _ = flags.GetFloat64("min-confidence")
	}
	if flags.Changed("cache-ttl-days") {
		wc.CacheTTLDays, _ = flags.GetInt("cache-ttl-days")
	}
	if flags.Changed("max-cost") {
		v, _ := flags.GetFloat64("max-cost")
		if v < 0 {
			wc.MaxCostPerLead = nil
		} else {
			wc.MaxCostPerLead = &v
		}
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	f := configSetCmd.Flags()
	f.StringSlice("providers", nil, "ordered provider ids, comma separated")
	f.Int("max-attempts", model.DefaultMaxAttempts, "max provider calls per field")
	f.Int("timeout-ms", model.DefaultTimeoutMs, "per-call timeout in milliseconds")
	f.Float64("min-confidence", model.DefaultMinConfidence, "confidence needed to accept a value")
	f.Int("cache-ttl-days", model.DefaultCacheTTLDays, "days an accepted value stays cached (0 disables)")
	f.Float64("max-cost", -1, "per-lead spend cap in USD (negative removes the cap)")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configDeleteCmd)
	rootCmd.AddCommand(configCmd)
}
