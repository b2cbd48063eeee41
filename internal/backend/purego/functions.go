package purego

import (
	"database/sql/driver"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"

	"github.com/nickcecere/memvec/internal/backend/sqlconn"
)

// registerFunctions installs Go implementations of the sqlite-vec scalar
// functions the collection schema and ranking query rely on. The driver
// applies them to every connection opened afterwards.
func registerFunctions() error {
	fns := []struct {
		name string
		args int32
		impl func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error)
	}{
		{"vec_length", 1, vecLength},
		{"vec_distance_cosine", 2, vecDistanceCosine},
		{"vec_distance_l2", 2, vecDistanceL2},
	}
	for _, fn := range fns {
		if err := sqlite.RegisterDeterministicScalarFunction(fn.name, fn.args, fn.impl); err != nil {
			return fmt.Errorf("failed to register %s: %w", fn.name, err)
		}
	}
	return nil
}

func asVector(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return sqlconn.DeserializeEmbedding(v)
	default:
		return nil, fmt.Errorf("unsupported vector argument type %T; want BLOB", arg)
	}
}

func vecLength(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	v, err := asVector(args[0])
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return int64(len(v)), nil
}

func vectorPair(name string, args []driver.Value) ([]float32, []float32, error) {
	a, err := asVector(args[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := asVector(args[1])
	if err != nil {
		return nil, nil, err
	}
	if a != nil && b != nil && len(a) != len(b) {
		return nil, nil, fmt.Errorf("%s: vector dimension mismatch %d vs %d", name, len(a), len(b))
	}
	return a, b, nil
}

// vecDistanceCosine returns 1 - cos(a, b), or NULL when either vector has no
// magnitude.
func vecDistanceCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, b, err := vectorPair("vec_distance_cosine", args)
	if err != nil || a == nil || b == nil {
		return nil, err
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return nil, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

func vecDistanceL2(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, b, err := vectorPair("vec_distance_l2", args)
	if err != nil || a == nil || b == nil {
		return nil, err
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
