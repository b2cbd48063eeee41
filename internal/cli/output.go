package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/search"
	"github.com/nickcecere/memvec/internal/ui"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

// parseKV turns key=value pairs into a map. Values that parse as JSON keep
// their JSON type (n=3 is a number, ok=true a bool); anything else is a
// string.
func parseKV(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}

		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[key] = decoded
		} else {
			out[key] = value
		}
	}
	return out, nil
}

// parseMetadata merges a JSON object and key=value pairs; pairs win.
func parseMetadata(pairs []string, object string) (map[string]any, error) {
	meta := map[string]any{}
	if object != "" {
		if err := json.Unmarshal([]byte(object), &meta); err != nil {
			return nil, fmt.Errorf("invalid metadata JSON: %w", err)
		}
		if meta == nil {
			meta = map[string]any{}
		}
	}

	kv, err := parseKV(pairs)
	if err != nil {
		return nil, err
	}
	for k, v := range kv {
		meta[k] = v
	}

	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

// writeJSON prints v as JSON, highlighted unless --json asked for plain
// output.
func writeJSON(w io.Writer, v any) error {
	return ui.WriteJSON(w, v, !rawJSON)
}

// printRecord renders one record. rank is omitted when zero.
func printRecord(w io.Writer, rank int, r search.Result, withScore bool) {
	header := ui.RecordID.Render(r.ID)
	if rank > 0 {
		header = ui.Bold.Render(fmt.Sprintf("[%d]", rank)) + " " + header
	}
	if withScore {
		header += " " + ui.FormatScore(r.Score)
	}
	fmt.Fprintln(w, header)

	if r.Text != "" {
		fmt.Fprintln(w, ui.RecordText.Render(r.Text))
	}

	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		if k == indexer.HashKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := r.Metadata[k]
		if nested, ok := v.(map[string]any); ok {
			data, _ := json.Marshal(nested)
			v = string(data)
		}
		fmt.Fprintf(w, "    %s\n", ui.FormatField(k, v))
	}
	fmt.Fprintln(w)
}

// printRecords renders a list of store records.
func printRecords(w io.Writer, records []vectorstore.Result, withScore bool) {
	for i, rec := range records {
		printRecord(w, i+1, search.FromRecord(rec), withScore)
	}
}
