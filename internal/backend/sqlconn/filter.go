package sqlconn

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// containment builds a WHERE fragment matching rows whose metadata column
// holds every key of filter with an equal value. An empty filter matches
// everything.
func containment(column string, filter map[string]any) (string, []any, error) {
	if len(filter) == 0 {
		return "1 = 1", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*4)
	for _, k := range keys {
		if k == "" || strings.ContainsAny(k, `"\`) {
			return "", nil, fmt.Errorf("invalid filter key: %q", k)
		}
		value, err := json.Marshal(filter[k])
		if err != nil {
			return "", nil, fmt.Errorf("invalid filter value for %q: %w", k, err)
		}
		path := `$."` + k + `"`

		// json_type distinguishes a JSON null from a missing key and a
		// number from its string spelling.
		clauses = append(clauses, fmt.Sprintf(
			"(json_type(%[1]s, ?) = json_type(?) AND json_extract(%[1]s, ?) IS json_extract(?, '$'))",
			column,
		))
		args = append(args, path, string(value), path, string(value))
	}

	return strings.Join(clauses, " AND "), args, nil
}
