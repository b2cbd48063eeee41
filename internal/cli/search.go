package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/search"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

var (
	searchLimit    int
	searchMinScore float64
	searchFilter   []string
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the records most similar to a query",
	Long: `Embed the query and rank the collection against it with the backend
ranking procedure. Results are ordered best first.

Examples:
  # Basic search
  memvec search "what does alice drink"

  # Only records with matching metadata
  memvec search "drinks" --filter user=alice

  # Limit results and drop weak matches
  memvec search "deadlines" -m 3 --min-score 0.5`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", vectorstore.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0.0, "minimum similarity score (0-1)")
	searchCmd.Flags().StringArrayVar(&searchFilter, "filter", nil, "metadata key=value that must match (repeatable)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	filter, err := parseKV(searchFilter)
	if err != nil {
		return err
	}

	log.Debug("Starting search", "query", query, "limit", searchLimit, "filter", filter)

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

	searcher := search.New(st, emb, cfg.Collection.Dimensions)
	results, err := searcher.Search(ctx, query, search.SearchOptions{
		TopK:     searchLimit,
		MinScore: searchMinScore,
		Filter:   filter,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if rawJSON {
		return writeJSON(out, results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(results))
	for i, r := range results {
		printRecord(out, i+1, r, true)
	}
	return nil
}
