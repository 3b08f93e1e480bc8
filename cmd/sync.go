package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-extract/internal/config"
	"github.com/sells-group/crm-extract/internal/crmsync"
)

var syncCmd = &cobra.Command{
	Use:   "sync <extraction-id>",
	Short: "Push a stored extraction to HubSpot",
	Long:  "Creates the extraction's company, contact and deal in HubSpot, in that order, linking the deal to whichever of the others were created.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid extraction id %q", args[0])
		}
		if err := cfg.Validate(config.ModeSync); err != nil {
			return err
		}

		st, err := openCommandStore(ctx, cfg, cmd.CommandPath())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		crm, err := initHubSpot(cfg)
		if err != nil {
			return err
		}

		noContact, _ := cmd.Flags().GetBool("no-contact")
		noCompany, _ := cmd.Flags().GetBool("no-company")
		noDeal, _ := cmd.Flags().GetBool("no-deal")
		opts := crmsync.Options{
			CreateContact: !noContact,
			CreateCompany: !noCompany,
			CreateDeal:    !noDeal,
		}

		res, err := newOrchestrator(crm, st, cfg).Sync(ctx, id, opts)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatSyncResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func formatSyncResult(w io.Writer, res *crmsync.Result) {
	fmt.Fprintf(w, "Extraction %d synced (run %s)\n\n", res.ExtractionID, res.RunID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tSTATUS\tHUBSPOT ID\tDETAIL")
	for _, row := range []struct {
		name string
		r    crmsync.EntityResult
	}{
		{"company", res.Results.Company},
		{"contact", res.Results.Contact},
		{"deal", res.Results.Deal},
	} {
		detail := row.r.Reason
		if row.r.Error != "" {
			detail = row.r.Error
			if row.r.Retryable {
				detail += " (retryable)"
			}
		}
		id := row.r.ID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.name, row.r.Status, id, detail)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	syncCmd.Flags().Bool("no-contact", false, "do not create the contact")
	syncCmd.Flags().Bool("no-company", false, "do not create the company")
	syncCmd.Flags().Bool("no-deal", false, "do not create the deal")
	syncCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(syncCmd)
}
