package vectorstore

import (
	"context"
	"slices"

	"github.com/samber/oops"

	"github.com/nickcecere/memvec/internal/backend"
)

// SentinelID is the reserved id of the probe record written during
// initialization. Real records must not use it.
const SentinelID = "__memvec_bootstrap_probe__"

// bootstrap proves the collection accepts writes by inserting and removing a
// probe record, then checks that the configured ranking procedure ranks this
// table. The sequence is not atomic; a crash in between leaves the probe
// behind under SentinelID.
func (a *Adapter) bootstrap(ctx context.Context) error {
	t := a.cfg.Table

	// A probe left over from an interrupted run would make the insert fail.
	if err := a.conn.Delete(ctx, t, SentinelID); err != nil {
		a.logger.Debug("Ignoring probe cleanup failure", "error", err)
	}

	probe := backend.Row{
		ID:        SentinelID,
		Embedding: make([]float32, a.cfg.Dimensions),
		Metadata:  map[string]any{},
	}
	if err := a.conn.Insert(ctx, t, []backend.Row{probe}); err != nil {
		return oops.Code(CodeSchemaUnavailable).
			With("table", t.Name, "dimensions", a.cfg.Dimensions, "procedure", a.cfg.Procedure).
			Hint(`run "memvec schema print" for the statements that create it`).
			Wrapf(err,
				"collection %q is not usable: it needs table %q with columns %s (text key), %s (%d-dimension vector) and %s (JSON object), the vector functions, and ranking procedure %q",
				t.Name, t.Name, t.IDColumn, t.EmbeddingColumn, a.cfg.Dimensions, t.MetadataColumn, a.cfg.Procedure)
	}

	if err := a.conn.Delete(ctx, t, SentinelID); err != nil {
		return a.fail("bootstrap", err)
	}

	info, err := a.conn.Describe(ctx, t)
	if err != nil {
		return a.fail("bootstrap", err)
	}
	if !slices.Contains(info.Procedures, a.cfg.Procedure) {
		return oops.Code(CodeSchemaUnavailable).
			With("table", t.Name, "procedure", a.cfg.Procedure, "registered", info.Procedures).
			Hint("set collection.procedure to one registered for this table, or migrate it with a free procedure name").
			Errorf("ranking procedure %q does not rank collection %q", a.cfg.Procedure, t.Name)
	}

	a.logger.Debug("Vector store ready", "dimensions", a.cfg.Dimensions, "procedure", a.cfg.Procedure)
	return nil
}
