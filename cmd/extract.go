package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crm-extract/internal/config"
	"github.com/sells-group/crm-extract/internal/extract"
	"github.com/sells-group/crm-extract/internal/model"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Extract CRM records from a meeting summary",
	Long:  "Reads a meeting summary from a file, or from stdin when the argument is - or omitted, extracts contact, company and deal data, and stores the extraction.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeExtract); err != nil {
			return err
		}

		src := "-"
		if len(args) == 1 {
			src = args[0]
		}
		summary, err := readSummary(src, cmd.InOrStdin())
		if err != nil {
			return err
		}

		completer, err := initCompleter(cfg)
		if err != nil {
			return err
		}
		engine := extract.NewEngine(completer)

		output, _ := cmd.Flags().GetString("output")
		noSave, _ := cmd.Flags().GetBool("no-save")

		if noSave {
			rec, err := engine.Extract(ctx, summary)
			if err != nil {
				return err
			}
			return writeExtraction(cmd.OutOrStdout(), output, 0, rec)
		}

		st, err := openCommandStore(ctx, cfg, cmd.CommandPath())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ext, rec, err := engine.ExtractAndSave(ctx, st, summary)
		if err != nil {
			return err
		}
		return writeExtraction(cmd.OutOrStdout(), output, ext.ID, rec)
	},
}

// readSummary reads the meeting summary from path, or from stdin for "-".
func readSummary(path string, stdin io.Reader) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", eris.Wrapf(err, "read meeting summary from %s", path)
	}
	return string(b), nil
}

type extractOutput struct {
	ID            int64                 `json:"id,omitempty"`
	ExtractedData model.ExtractedRecord `json:"extractedData"`
}

// writeExtraction prints the result as indented JSON or as YAML with the
// same camelCase keys.
func writeExtraction(w io.Writer, format string, id int64, rec model.ExtractedRecord) error {
	out := extractOutput{ID: id, ExtractedData: rec}
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		b, err := json.Marshal(out)
		if err != nil {
			return eris.Wrap(err, "marshal extraction")
		}
		var generic map[string]any
		if err := json.Unmarshal(b, &generic); err != nil {
			return eris.Wrap(err, "unmarshal extraction")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unsupported output format %q (want json or yaml)", format)
	}
}

func init() {
	extractCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
	extractCmd.Flags().Bool("no-save", false, "print the extraction without storing it")
	rootCmd.AddCommand(extractCmd)
}
