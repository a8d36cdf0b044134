package main

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

var (
	importTenant  string
	importCSVPath string
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Manage contact records",
}

var contactsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk upsert contacts from a CSV file",
	Long:  "Reads a CSV with a header row. Recognised columns: id, email, phone, first_name, last_name, company, domain, linkedin_url. The id column is required.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importTenant == "" {
			return eris.New("tenant is required (--tenant)")
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		contacts, err := readContactsCSV(f, importTenant, time.Now().UTC())
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertContacts(ctx, contacts)
		if err != nil {
			return eris.Wrap(err, "import contacts")
		}

		zap.L().Info("import complete",
			zap.String("tenant", importTenant),
			zap.Int64("upserted", n),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

// readContactsCSV parses contacts for tenantID. Unknown columns are ignored;
// rows without an id fail the whole import.
func readContactsCSV(r io.Reader, tenantID string, now time.Time) ([]model.Contact, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read csv header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["id"]; !ok {
		return nil, eris.New("csv: missing id column")
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []model.Contact
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: line %d", line)
		}
		c := model.Contact{
			TenantID:    tenantID,
			ID:          get(rec, "id"),
			Email:       get(rec, "email"),
			Phone:       get(rec, "phone"),
			FirstName:   get(rec, "first_name"),
			LastName:    get(rec, "last_name"),
			Company:     get(rec, "company"),
			Domain:      get(rec, "domain"),
			LinkedInURL: get(rec, "linkedin_url"),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := c.Validate(); err != nil {
			return nil, eris.Wrapf(err, "csv: line %d", line)
		}
		out = append(out, c)
	}
	return out, nil
}

func init() {
	contactsImportCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant id (required)")
	contactsImportCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = contactsImportCmd.MarkFlagRequired("csv")
	contactsCmd.AddCommand(contactsImportCmd)
	rootCmd.AddCommand(contactsCmd)
}
