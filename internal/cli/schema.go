package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/backend"
	"github.com/nickcecere/memvec/internal/backend/sqlconn"
	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/ui"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

var schemaRaw bool

// migrator is implemented by backends that can create the collection
// schema themselves.
type migrator interface {
	Migrate(ctx context.Context, t backend.Table, opts sqlconn.SchemaOptions) error
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print or apply the collection schema",
	Long: `The collection needs a table, vector functions and a ranking procedure
before memvec can use it. 'schema print' shows the SQL for the configured
collection; 'schema apply' runs it against a local SQLite backend.`,
}

var schemaPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the SQL that creates the collection",
	Args:  cobra.NoArgs,
	RunE:  runSchemaPrint,
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create the collection in the configured backend",
	Args:  cobra.NoArgs,
	RunE:  runSchemaApply,
}

func init() {
	schemaPrintCmd.Flags().BoolVar(&schemaRaw, "raw", false, "print plain SQL without rendering")

	schemaCmd.AddCommand(schemaPrintCmd)
	schemaCmd.AddCommand(schemaApplyCmd)
}

func schemaOptions(cfg *config.Config) sqlconn.SchemaOptions {
	return sqlconn.SchemaOptions{
		Dimensions: cfg.Collection.Dimensions,
		Procedure:  cfg.Collection.Procedure,
		Metric:     cfg.Collection.Metric,
	}
}

func runSchemaPrint(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	script, err := sqlconn.Script(cfg.Collection.BackendTable(), schemaOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}

	out := cmd.OutOrStdout()
	if schemaRaw || rawJSON {
		_, err := fmt.Fprint(out, script)
		return err
	}

	doc := fmt.Sprintf("# Collection `%s`\n\n%d dimensions, ranked by `%s` (%s).\n\n```sql\n%s```\n",
		cfg.Collection.Table, cfg.Collection.Dimensions, cfg.Collection.Procedure, cfg.Collection.Metric, script)
	rendered, err := ui.RenderMarkdown(doc)
	if err != nil {
		log.Debug("Markdown rendering failed, printing raw SQL", "error", err)
		_, err = fmt.Fprint(out, script)
		return err
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func runSchemaApply(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	conn, err := openConn(ctx, cfg)
	if err != nil {
		return err
	}

	m, ok := conn.(migrator)
	if !ok {
		_ = conn.Close()
		return fmt.Errorf("backend %q cannot apply schema; run 'memvec schema print' and apply it on the server", cfg.Backend.Name)
	}

	tbl := cfg.Collection.BackendTable()
	if err := m.Migrate(ctx, tbl, schemaOptions(cfg)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	// Bootstrapping proves the collection is usable end to end
	st, err := vectorstore.New(ctx, conn, storeConfig(cfg),
		vectorstore.WithLogger(ui.NewLogger(os.Stderr, "vectorstore")))
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render(fmt.Sprintf("Collection '%s' is ready (%d dimensions).", tbl.Name, cfg.Collection.Dimensions)))
	return nil
}
