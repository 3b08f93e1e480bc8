package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-extract/internal/model"
)

var extractionsCmd = &cobra.Command{
	Use:   "extractions",
	Short: "Inspect stored extractions",
}

// -- extractions list --

var extractionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extractions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openCommandStore(ctx, cfg, cmd.CommandPath())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.ListExtractions(ctx)
		if err != nil {
			return eris.Wrap(err, "extractions list")
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No extractions found.")
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		if limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		formatExtractionsList(cmd.OutOrStdout(), list)
		return nil
	},
}

// -- extractions show --

var extractionsShowCmd = &cobra.Command{
	Use:   "show <extraction-id>",
	Short: "Show an extraction and its parsed record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid extraction id %q", args[0])
		}

		st, err := openCommandStore(ctx, cfg, cmd.CommandPath())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ext, err := st.GetExtraction(ctx, id)
		if err != nil {
			return err
		}
		return formatExtractionDetail(cmd.OutOrStdout(), ext)
	},
}

func formatExtractionsList(w io.Writer, list []model.Extraction) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSYNCED\tSUMMARY")
	for _, e := range list {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\n",
			e.ID,
			e.CreatedAt.Local().Format(time.DateTime),
			e.SyncedToHubspot,
			truncate(oneLine(e.MeetingSummary), 60),
		)
	}
	tw.Flush() //nolint:errcheck
}

func formatExtractionDetail(w io.Writer, ext *model.Extraction) error {
	fmt.Fprintf(w, "ID:      %d\n", ext.ID)
	fmt.Fprintf(w, "Created: %s\n", ext.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Synced:  %t\n\n", ext.SyncedToHubspot)
	fmt.Fprintf(w, "Summary:\n%s\n\n", strings.TrimSpace(ext.MeetingSummary))

	rec, err := ext.Record()
	if err != nil {
		fmt.Fprintf(w, "Extracted data (unparsed):\n%s\n", ext.ExtractedData)
		return nil
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal record")
	}
	fmt.Fprintf(w, "Extracted data:\n%s\n", b)
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	extractionsListCmd.Flags().Int("limit", 0, "maximum number of extractions to show (0 = all)")
	extractionsCmd.AddCommand(extractionsListCmd, extractionsShowCmd)
	rootCmd.AddCommand(extractionsCmd)
}
