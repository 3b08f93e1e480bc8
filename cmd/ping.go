package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-extract/internal/config"
	"github.com/sells-group/crm-extract/internal/llm"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the completion provider and HubSpot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if err := cfg.Validate(config.ModePing); err != nil {
			return err
		}

		var failed []string

		completer, err := initCompleter(cfg)
		if err == nil {
			var reply string
			reply, err = llm.Ping(ctx, completer)
			if err == nil {
				fmt.Fprintf(out, "%-10s ok (%s)\n", cfg.Provider(), reply)
			}
		}
		if err != nil {
			fmt.Fprintf(out, "%-10s FAILED: %v\n", cfg.Provider(), err)
			failed = append(failed, cfg.Provider())
		}

		crm, err := initHubSpot(cfg)
		switch {
		case err != nil:
			fmt.Fprintf(out, "%-10s FAILED: %v\n", "hubspot", err)
			failed = append(failed, "hubspot")
		case !crm.TestConnection(ctx):
			fmt.Fprintf(out, "%-10s FAILED: not connected\n", "hubspot")
			failed = append(failed, "hubspot")
		default:
			fmt.Fprintf(out, "%-10s connected\n", "hubspot")
		}

		if len(failed) > 0 {
			return eris.Errorf("ping failed: %v", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
