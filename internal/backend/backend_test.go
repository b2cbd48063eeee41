package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableWithDefaults(t *testing.T) {
	tbl := NewTable("memories")
	assert.Equal(t, "memories", tbl.Name)
	assert.Equal(t, "id", tbl.IDColumn)
	assert.Equal(t, "embedding", tbl.EmbeddingColumn)
	assert.Equal(t, "metadata", tbl.MetadataColumn)

	custom := Table{Name: "docs", EmbeddingColumn: "vec"}.WithDefaults()
	assert.Equal(t, "vec", custom.EmbeddingColumn)
	assert.Equal(t, "metadata", custom.MetadataColumn)
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr bool
	}{
		{"defaults", NewTable("memories"), false},
		{"underscore", NewTable("_mem_2"), false},
		{"empty name", NewTable(""), true},
		{"leading digit", NewTable("1mem"), true},
		{"injection", NewTable("mem; DROP TABLE x"), true},
		{"bad column", Table{Name: "mem", IDColumn: "id", EmbeddingColumn: "e-b", MetadataColumn: "m"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIdentifier)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type nopConn struct{ Conn }

func TestRegistry(t *testing.T) {
	Register("test-nop", func(ctx context.Context, s Settings) (Conn, error) {
		return nopConn{}, nil
	})
	Register("test-fail", func(ctx context.Context, s Settings) (Conn, error) {
		return nil, errors.New("boom")
	})

	assert.Contains(t, Names(), "test-nop")

	conn, err := Open(context.Background(), "test-nop", Settings{})
	require.NoError(t, err)
	assert.NotNil(t, conn)

	_, err = Open(context.Background(), "test-fail", Settings{})
	assert.EqualError(t, err, "boom")

	_, err = Open(context.Background(), "does-not-exist", Settings{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
