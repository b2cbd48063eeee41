package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/ui"
)

var (
	importBatchSize   int
	importConcurrency int
	importSkip        bool
	importDryRun      bool
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file.jsonl|->",
	Short: "Embed and store records from a JSONL file",
	Long: `Import records from a JSON Lines file, one object per line:

  {"id": "m1", "text": "prefers green tea", "metadata": {"user": "alice"}}

The id is optional; metadata may be omitted. Texts are embedded in batches
with several batches in flight, then inserted batch by batch.

Examples:
  # Import a file
  memvec import memories.jsonl

  # Re-import, skipping records whose text did not change
  memvec import memories.jsonl --skip-unchanged

  # Read from stdin
  cat memories.jsonl | memvec import -`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	defaults := indexer.DefaultIndexOptions()
	importCmd.Flags().IntVarP(&importBatchSize, "batch-size", "b", defaults.BatchSize, "records embedded and inserted together")
	importCmd.Flags().IntVarP(&importConcurrency, "concurrency", "j", defaults.Concurrency, "embedding batches in flight")
	importCmd.Flags().BoolVar(&importSkip, "skip-unchanged", false, "skip ids whose text is unchanged and update the rest")
	importCmd.Flags().BoolVarP(&importDryRun, "dry-run", "d", false, "parse the file without embedding or storing")
}

// readItems parses JSONL items. Blank lines are skipped; line numbers in
// errors are 1-based.
func readItems(r io.Reader) ([]indexer.Item, error) {
	var items []indexer.Item

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var item indexer.Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if item.Text == "" {
			return nil, fmt.Errorf("line %d: text is required", line)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return items, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	items, err := readItems(in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "Nothing to import.")
		return nil
	}
	if importDryRun {
		fmt.Fprintf(out, "%d records parsed, nothing stored (dry run).\n", len(items))
		return nil
	}

	cfg := config.Get()

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

	log.Debug("Starting import", "records", len(items), "batch", importBatchSize, "concurrency", importConcurrency)

	idx := indexer.New(st, emb, cfg.Collection.Dimensions)

	if !rawJSON {
		fmt.Fprintln(out, ui.Header.Render(fmt.Sprintf("Importing %d records into %s", len(items), cfg.Collection.Table)))
		fmt.Fprintf(out, "Provider: %s (%s)\n\n", emb.Provider(), emb.ModelName())
	}

	var progressMu sync.Mutex
	lastUpdate := time.Now()
	opts := indexer.IndexOptions{
		BatchSize:     importBatchSize,
		Concurrency:   importConcurrency,
		SkipUnchanged: importSkip,
		OnProgress: func(p indexer.Progress) {
			// Progress goes to stderr so stdout stays parseable
			progressMu.Lock()
			defer progressMu.Unlock()
			if time.Since(lastUpdate) < 100*time.Millisecond {
				return
			}
			lastUpdate = time.Now()
			fmt.Fprintf(os.Stderr, "\r\033[KEmbedded %d/%d | Inserted %d | Skipped %d",
				p.EmbeddedItems, p.TotalItems, p.InsertedItems, p.SkippedItems)
		},
	}

	ids, err := idx.Index(ctx, items, opts)
	fmt.Fprint(os.Stderr, "\r\033[K")
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, ui.Warning.Render("Import cancelled"))
			return nil
		}
		return fmt.Errorf("import failed: %w", err)
	}

	p := idx.Progress()
	if rawJSON {
		return writeJSON(out, map[string]any{
			"ids":      ids,
			"inserted": p.InsertedItems,
			"skipped":  p.SkippedItems,
		})
	}

	fmt.Fprintln(out, ui.Success.Render("Import complete!"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Stored:   %d\n", p.InsertedItems)
	fmt.Fprintf(out, "  Skipped:  %d\n", p.SkippedItems)
	fmt.Fprintf(out, "  Duration: %s\n", time.Since(p.StartTime).Round(time.Millisecond))
	return nil
}
