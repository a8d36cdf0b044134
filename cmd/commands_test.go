//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-waterfall/internal/model"
	"github.com/sells-group/enrich-waterfall/internal/monitoring"
)

// runCmd executes c's RunE with a background context and captures stdout.
func runCmd(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c.SetContext(context.Background())
	c.SetOut(&out)
	t.Cleanup(func() {
		c.SetContext(context.TODO())
		c.SetOut(nil)
	})
	err := c.RunE(c, args)
	return out.String(), err
}

func importFixtureContacts(t *testing.T) {
	t.Helper()
	csvPath := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,first_name,last_name,domain\nc-1,Ada,Lovelace,acme.io\nc-2,Grace,Hopper,navy.mil\n"), 0o644))

	importTenant, importCSVPath = "acme", csvPath
	t.Cleanup(func() { importTenant, importCSVPath = "", "" })

	_, err := runCmd(t, contactsImportCmd)
	require.NoError(t, err)
}

func TestCommands_EndToEnd(t *testing.T) {
	cfg = testConfig(t)
	importFixtureContacts(t)

	// Enrich resolves from the fixture provider.
	out, err := runCmd(t, enrichCmd, "acme", "c-1", "email")
	require.NoError(t, err)
	var job model.EnrichmentJob
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, "ada@acme.io", job.Resolutions["email"].Value)
	assert.InDelta(t, 0.01, job.TotalCost, 1e-9)

	// Job history is visible.
	out, err = runCmd(t, jobsListCmd, "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "c-1")

	out, err = runCmd(t, jobsShowCmd, "acme", job.ID)
	require.NoError(t, err)
	assert.Contains(t, out, job.ID)

	// Health shows one closed circuit.
	out, err = runCmd(t, healthCmd, "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "fixture")
	assert.Contains(t, out, string(model.CircuitClosed))

	// A second run is served from cache at no cost.
	out, err = runCmd(t, enrichCmd, "acme", "c-1", "email")
	require.NoError(t, err)
	job = model.EnrichmentJob{}
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, model.ResolutionCached, job.Resolutions["email"].Status)
	assert.Zero(t, job.TotalCost)

	// After invalidation and disabling the provider for the tenant, the
	// field goes unresolved.
	_, err = runCmd(t, cacheInvalidateCmd, "acme", "c-1")
	require.NoError(t, err)

	providersTenant = "acme"
	t.Cleanup(func() { providersTenant = "" })
	out, err = runCmd(t, findSub(t, providersCmd, "disable"), "fixture")
	require.NoError(t, err)
	assert.Contains(t, out, "false")

	out, err = runCmd(t, enrichCmd, "acme", "c-1", "email")
	require.NoError(t, err)
	job = model.EnrichmentJob{}
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, model.JobStatusExhausted, job.Status)
	assert.Equal(t, model.ResolutionUnresolved, job.Resolutions["email"].Status)

	// Other tenants still see the global entry enabled.
	providersTenant = "other"
	out, err = runCmd(t, providersListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "fixture")
	assert.Contains(t, out, "true")
}

func TestCommands_EnrichRejectsUnknownContact(t *testing.T) {
	cfg = testConfig(t)

	out, err := runCmd(t, enrichCmd, "acme", "nobody", "email")
	require.Error(t, err)

	var job model.EnrichmentJob
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, model.JobStatusFailed, job.Status)
}

func TestCommands_ConfigSetGetDelete(t *testing.T) {
	cfg = testConfig(t)

	require.NoError(t, configSetCmd.Flags().Set("providers", "fixture"))
	require.NoError(t, configSetCmd.Flags().Set("min-confidence", "0.95"))
	require.NoError(t, configSetCmd.Flags().Set("max-cost", "0.05"))

	out, err := runCmd(t, configSetCmd, "acme", "email")
	require.NoError(t, err)
	var saved model.WaterfallConfig
	require.NoError(t, json.Unmarshal([]byte(out), &saved))
	assert.Equal(t, []string{"fixture"}, saved.ProviderOrder)
	assert.InDelta(t, 0.95, saved.MinConfidence, 1e-9)
	require.NotNil(t, saved.MaxCostPerLead)
	assert.InDelta(t, 0.05, *saved.MaxCostPerLead, 1e-9)
	assert.Equal(t, model.DefaultMaxAttempts, saved.MaxAttempts)

	out, err = runCmd(t, configGetCmd, "acme", "email")
	require.NoError(t, err)
	var got model.WaterfallConfig
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 0.95, got.MinConfidence, 1e-9)

	_, err = runCmd(t, configDeleteCmd, "acme", "email")
	require.NoError(t, err)
	_, err = runCmd(t, configDeleteCmd, "acme", "email")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCommands_CacheSweep(t *testing.T) {
	cfg = testConfig(t)

	out, err := runCmd(t, cacheSweepCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 expired entries")
}

func TestCommands_CacheInvalidateUnknownField(t *testing.T) {
	cfg = testConfig(t)
	cacheField = "shoe_size"
	t.Cleanup(func() { cacheField = "" })

	_, err := runCmd(t, cacheInvalidateCmd, "acme", "c-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestCommands_MonitorCheck(t *testing.T) {
	cfg = testConfig(t)
	cfg.Monitor.FailureRateThreshold = 0.5
	importFixtureContacts(t)

	for range 5 {
		_, err := runCmd(t, enrichCmd, "acme", "nobody", "email")
		require.Error(t, err)
	}
	monitorNoSend = true
	t.Cleanup(func() { monitorNoSend = false })

	out, err := runCmd(t, monitorCheckCmd)
	require.NoError(t, err)

	var res monitoring.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 5, res.Snapshot.JobsFailed)
	assert.Equal(t, 24, res.Snapshot.LookbackHours)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, monitoring.AlertJobFailureRate, res.Alerts[0].Type)
	assert.Zero(t, res.Sent)
}

func TestCommands_Migrate(t *testing.T) {
	cfg = testConfig(t)

	_, err := runCmd(t, migrateCmd)
	require.NoError(t, err)
	_, err = os.Stat(cfg.Store.SQLitePath)
	assert.NoError(t, err)
}

func TestContactsImport_RequiresTenant(t *testing.T) {
	cfg = testConfig(t)
	importTenant, importCSVPath = "", "contacts.csv"
	t.Cleanup(func() { importCSVPath = "" })

	_, err := runCmd(t, contactsImportCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant is required")
}

func TestReadContactsCSV(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	contacts, err := readContactsCSV(strings.NewReader("ID, Email ,extra\nc-1, ada@acme.io ,x\nc-2,,y\n"), "acme", now)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "acme", contacts[0].TenantID)
	assert.Equal(t, "c-1", contacts[0].ID)
	assert.Equal(t, "ada@acme.io", contacts[0].Email)
	assert.True(t, contacts[1].CreatedAt.Equal(now))

	_, err = readContactsCSV(strings.NewReader("email\nada@acme.io\n"), "acme", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id column")

	_, err = readContactsCSV(strings.NewReader("id,email\n,ada@acme.io\n"), "acme", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = readContactsCSV(strings.NewReader(""), "acme", now)
	assert.Error(t, err)
}

func findSub(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range parent.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("subcommand %q not found", name)
	return nil
}
