package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/ingest"
	"github.com/nickcecere/memvec/internal/ui"
)

var (
	ingestExtensions []string
	ingestIgnore     []string
	ingestChunkSize  int
	ingestOverlap    int
	ingestMaxFiles   int
	ingestMaxSize    int64
	ingestHidden     bool
	ingestNoPrune    bool
	ingestDryRun     bool
)

// ingestCmd stores the text files of a directory as chunked records.
var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Chunk and store the text files of a directory",
	Long: `Walk a directory, split every text file into overlapping line ranges
and store each range as a record with id "path#chunk".

Files matched by the root .gitignore, hidden files, binary files and common
generated files are skipped. Records carry source, chunk, start_line and
end_line metadata, so searches can be filtered by file:

  memvec search "retry policy" --filter source=docs/http.md

Re-running ingest only embeds chunks whose text changed and deletes chunks
past the end of files that shrank.

Examples:
  # Ingest a notes directory
  memvec ingest ~/notes

  # Only markdown, smaller chunks
  memvec ingest ./docs --ext md --chunk-size 800`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	walk := ingest.DefaultWalkOptions()
	chunk := ingest.DefaultChunkOptions()
	ingestCmd.Flags().StringSliceVar(&ingestExtensions, "ext", nil, "only ingest files with these extensions")
	ingestCmd.Flags().StringArrayVar(&ingestIgnore, "ignore", nil, "extra ignore pattern in gitignore syntax (repeatable)")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", chunk.Size, "target chunk size in characters")
	ingestCmd.Flags().IntVar(&ingestOverlap, "overlap", chunk.Overlap, "characters shared by consecutive chunks")
	ingestCmd.Flags().IntVar(&ingestMaxFiles, "max-files", walk.MaxFiles, "stop after this many files (0 for no limit)")
	ingestCmd.Flags().Int64Var(&ingestMaxSize, "max-size", walk.MaxFileSize, "skip files larger than this many bytes (0 for no limit)")
	ingestCmd.Flags().BoolVar(&ingestHidden, "hidden", false, "include dot files and directories")
	ingestCmd.Flags().BoolVar(&ingestNoPrune, "no-prune", false, "keep stored chunks past the end of shrunk files")
	ingestCmd.Flags().BoolVarP(&ingestDryRun, "dry-run", "d", false, "list what would be stored without embedding")
}

func runIngest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	walkOpts := ingest.WalkOptions{
		Root:           args[0],
		MaxFileSize:    ingestMaxSize,
		MaxFiles:       ingestMaxFiles,
		IgnorePatterns: ingestIgnore,
		Extensions:     ingestExtensions,
		IncludeHidden:  ingestHidden,
	}
	chunkOpts := ingest.DefaultChunkOptions()
	chunkOpts.Size = ingestChunkSize
	chunkOpts.Overlap = ingestOverlap

	sources, stats, err := ingest.Collect(walkOpts, chunkOpts)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", args[0], err)
	}

	var items []indexer.Item
	for _, src := range sources {
		items = append(items, src.Items...)
	}
	log.Debug("Scanned directory", "files", stats.FilesFound, "skipped", stats.FilesSkipped, "chunks", len(items))

	if ingestDryRun {
		if rawJSON {
			return writeJSON(out, map[string]any{"files": len(sources), "chunks": len(items)})
		}
		for _, src := range sources {
			fmt.Fprintf(out, "%s %s\n", src.RelPath, ui.Dim.Render(fmt.Sprintf("(%d chunks)", len(src.Items))))
		}
		fmt.Fprintf(out, "\n%d files, %d chunks, nothing stored (dry run).\n", len(sources), len(items))
		return nil
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No text files found.")
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

	if !rawJSON {
		fmt.Fprintln(out, ui.Header.Render(fmt.Sprintf("Ingesting %d files into %s", len(sources), cfg.Collection.Table)))
		fmt.Fprintf(out, "Provider: %s (%s)\n\n", emb.Provider(), emb.ModelName())
	}

	idx := indexer.New(st, emb, cfg.Collection.Dimensions)
	opts := indexer.DefaultIndexOptions()
	opts.SkipUnchanged = true
	if _, err := idx.Index(ctx, items, opts); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, ui.Warning.Render("Ingest cancelled"))
			return nil
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	pruned := 0
	if !ingestNoPrune {
		for _, src := range sources {
			n, err := ingest.Prune(ctx, st, src)
			if err != nil {
				return fmt.Errorf("failed to prune %s: %w", src.RelPath, err)
			}
			pruned += n
		}
	}

	p := idx.Progress()
	if rawJSON {
		return writeJSON(out, map[string]any{
			"files":    len(sources),
			"chunks":   len(items),
			"inserted": p.InsertedItems,
			"skipped":  p.SkippedItems,
			"pruned":   pruned,
		})
	}

	fmt.Fprintln(out, ui.Success.Render("Ingest complete!"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Files:    %d (%d skipped)\n", len(sources), stats.FilesSkipped)
	fmt.Fprintf(out, "  Stored:   %d\n", p.InsertedItems)
	fmt.Fprintf(out, "  Skipped:  %d\n", p.SkippedItems)
	fmt.Fprintf(out, "  Pruned:   %d\n", pruned)
	fmt.Fprintf(out, "  Duration: %s\n", time.Since(p.StartTime).Round(time.Millisecond))
	if stats.FilesFound >= ingestMaxFiles && ingestMaxFiles > 0 {
		fmt.Fprintln(os.Stderr, ui.Warning.Render(fmt.Sprintf("Stopped at %d files, raise --max-files to ingest more", ingestMaxFiles)))
	}
	return nil
}
