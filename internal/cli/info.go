package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/ui"
)

// infoCmd shows the configured collection
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show collection details and record count",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

// colsCmd lists the collections the backend holds
var colsCmd = &cobra.Command{
	Use:   "cols",
	Short: "List collections in the backend",
	Args:  cobra.NoArgs,
	RunE:  runCols,
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	info, err := st.ColInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to describe collection: %w", err)
	}

	out := cmd.OutOrStdout()
	if rawJSON {
		return writeJSON(out, info)
	}

	tbl := cfg.Collection.BackendTable()
	fmt.Fprintln(out, ui.SectionTitle.Render("Collection "+info.Name))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  "+ui.FormatField("Backend", cfg.Backend.Name))
	fmt.Fprintln(out, "  "+ui.FormatField("Records", info.Count))
	fmt.Fprintln(out, "  "+ui.FormatField("Dimensions", info.Dimensions))
	fmt.Fprintln(out, "  "+ui.FormatField("Procedure", info.Procedure))
	if info.Metric != "" {
		fmt.Fprintln(out, "  "+ui.FormatField("Metric", info.Metric))
	}
	fmt.Fprintln(out, "  "+ui.FormatField("Columns", fmt.Sprintf("%s, %s, %s", tbl.IDColumn, tbl.EmbeddingColumn, tbl.MetadataColumn)))
	return nil
}

func runCols(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cols, err := st.ListCols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	out := cmd.OutOrStdout()
	if rawJSON {
		return writeJSON(out, cols)
	}

	if len(cols) == 0 {
		fmt.Fprintln(out, "No collections found.")
		return nil
	}
	for _, c := range cols {
		marker := " "
		if c == cfg.Collection.Table {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, ui.RecordID.Render(c))
	}
	return nil
}
