package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/embeddings"
	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/search"
	"github.com/nickcecere/memvec/internal/ui"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

var (
	insertID       string
	insertMeta     []string
	insertMetaJSON string

	updateMeta     []string
	updateMetaJSON string

	listFilter []string
	listLimit  int

	deleteColYes bool
)

var insertCmd = &cobra.Command{
	Use:   "insert <text>",
	Short: "Embed a text and store it",
	Long: `Embed a text with the configured embedder and store it with its metadata.
The id is generated when --id is not given.

Examples:
  memvec insert "prefers green tea" --meta user=alice --meta priority=2
  memvec insert "meeting notes" --id notes-1 --meta-json '{"tags":["work"]}'`,
	Args: cobra.ExactArgs(1),
	RunE: runInsert,
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var updateCmd = &cobra.Command{
	Use:   "update <id> <text>",
	Short: "Replace the text, vector and metadata of a record",
	Long: `Re-embed the text and replace the record's vector and metadata. The
previous metadata is not merged.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete records by id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

var deleteColCmd = &cobra.Command{
	Use:   "delete-col",
	Short: "Delete every record in the collection",
	Args:  cobra.NoArgs,
	RunE:  runDeleteCol,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, optionally filtered by metadata",
	Long: `List records whose metadata has every --filter key/value pair.

Examples:
  memvec list
  memvec list --filter user=alice --limit 20`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	insertCmd.Flags().StringVar(&insertID, "id", "", "record id (generated when empty)")
	insertCmd.Flags().StringArrayVar(&insertMeta, "meta", nil, "metadata key=value (repeatable)")
	insertCmd.Flags().StringVar(&insertMetaJSON, "meta-json", "", "metadata as a JSON object")

	updateCmd.Flags().StringArrayVar(&updateMeta, "meta", nil, "metadata key=value (repeatable)")
	updateCmd.Flags().StringVar(&updateMetaJSON, "meta-json", "", "metadata as a JSON object")

	listCmd.Flags().StringArrayVar(&listFilter, "filter", nil, "metadata key=value that must match (repeatable)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "m", vectorstore.DefaultListLimit, "maximum number of records")

	deleteColCmd.Flags().BoolVar(&deleteColYes, "yes", false, "confirm deleting every record")
}

func runInsert(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	meta, err := parseMetadata(insertMeta, insertMetaJSON)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	emb, err := openEmbedder(cfg)
	if err != nil {
		return err
	}

	idx := indexer.New(st, emb, cfg.Collection.Dimensions)
	ids, err := idx.Index(ctx, []indexer.Item{{ID: insertID, Text: args[0], Metadata: meta}}, indexer.DefaultIndexOptions())
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}

	if rawJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"id": ids[0]})
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render("Stored "+ids[0]))
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no record with id %s", args[0])
	}

	if rawJSON {
		return writeJSON(cmd.OutOrStdout(), rec)
	}
	r := search.FromRecord(*rec)
	printRecord(cmd.OutOrStdout(), 0, r, false)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id, text := args[0], args[1]
	cfg := config.Get()

	meta, err := parseMetadata(updateMeta, updateMetaJSON)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	existing, err := st.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("no record with id %s", id)
	}

	emb, err := openEmbedder(cfg)
	if err != nil {
		return err
	}
	vec, err := emb.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed text: %w", err)
	}
	if err := embeddings.CheckDimensions(vec, cfg.Collection.Dimensions); err != nil {
		return err
	}

	payload := indexer.NewPayload(indexer.Item{ID: id, Text: text, Metadata: meta})
	if err := st.Update(ctx, id, vec, payload); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render("Updated "+id))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, id := range args {
		if err := st.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
		log.Debug("Deleted record", "id", id)
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render(fmt.Sprintf("Deleted %d record(s).", len(args))))
	return nil
}

func runDeleteCol(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if !deleteColYes {
		return fmt.Errorf("refusing to delete every record in '%s' without --yes", cfg.Collection.Table)
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteCol(ctx); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render(fmt.Sprintf("Collection '%s' cleared.", cfg.Collection.Table)))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	filter, err := parseKV(listFilter)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	records, total, err := st.List(ctx, filter, listLimit)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if rawJSON {
		return writeJSON(out, map[string]any{"records": records, "total": total})
	}

	if total == 0 {
		fmt.Fprintln(out, "No records found.")
		return nil
	}

	fmt.Fprintln(out, ui.Header.Render(fmt.Sprintf("Showing %d of %d records", len(records), total)))
	fmt.Fprintln(out)
	printRecords(out, records, false)
	return nil
}
