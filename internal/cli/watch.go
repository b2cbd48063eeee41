package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/ui"
	"github.com/nickcecere/memvec/internal/watcher"
)

var (
	watchNoInitial bool
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch <file.jsonl>...",
	Short: "Keep the collection in sync with JSONL files",
	Long: `Import JSONL files, then watch them and re-import whenever they change.

Re-imports skip records whose text is unchanged and update the ones that
changed, so every record needs an id. Records removed from a file are not
deleted from the collection.

Examples:
  # Watch one file
  memvec watch memories.jsonl

  # Skip the initial import (assumes it already ran)
  memvec watch memories.jsonl --no-initial`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip the initial import")
}

// syncFile imports path, skipping unchanged records.
func syncFile(ctx context.Context, idx *indexer.Indexer, path string) (indexer.Progress, error) {
	f, err := os.Open(path)
	if err != nil {
		return indexer.Progress{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	items, err := readItems(f)
	if err != nil {
		return indexer.Progress{}, fmt.Errorf("%s: %w", path, err)
	}
	for i, item := range items {
		if item.ID == "" {
			return indexer.Progress{}, fmt.Errorf("%s: record %d has no id", path, i+1)
		}
	}

	opts := indexer.DefaultIndexOptions()
	opts.SkipUnchanged = true
	if _, err := idx.Index(ctx, items, opts); err != nil {
		return indexer.Progress{}, err
	}
	return idx.Progress(), nil
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

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

	syncPath := func(ctx context.Context, path string) error {
		start := time.Now()
		p, err := syncFile(ctx, idx, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s: %d stored, %d unchanged (%s)\n",
			ui.Success.Render("synced"), path, p.InsertedItems, p.SkippedItems,
			time.Since(start).Round(time.Millisecond))
		return nil
	}

	if !watchNoInitial {
		fmt.Fprintln(out, ui.Header.Render("Initial import"))
		for _, path := range args {
			if err := syncPath(ctx, path); err != nil {
				return fmt.Errorf("initial import failed: %w", err)
			}
		}
		fmt.Fprintln(out)
	}

	w, err := watcher.New(args, syncPath,
		watcher.WithDebounceTime(500*time.Millisecond),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("Watcher event", "event", event, "path", path)
		}),
	)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, ui.Dim.Render("Watching for changes, press Ctrl+C to stop"))
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(out, "\nStopped watching.")
	return nil
}
