package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolsLookup(t *testing.T) {
	syms := NewSymbols[int]()
	syms.Define("a", 1)

	syms.Enter()
	syms.Define("b", 2)
	v, ok := syms.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// redefining in the same scope replaces
	syms.Define("b", 3)
	v, _ = syms.Lookup("b")
	assert.Equal(t, 3, v)

	syms.Enter()
	syms.Define("a", 10)
	v, _ = syms.Lookup("a")
	assert.Equal(t, 10, v)
	syms.Leave()
	v, _ = syms.Lookup("a")
	assert.Equal(t, 1, v)

	syms.Leave()
	_, ok = syms.Lookup("b")
	assert.False(t, ok)
}

func TestSymbolsStopAtFunction(t *testing.T) {
	syms := NewSymbols[string]()
	syms.Define("host", "x")
	syms.EnterFunc()
	syms.Define("start", "s")
	syms.Enter()

	_, ok := syms.Lookup("host")
	assert.False(t, ok)
	v, ok := syms.Lookup("start")
	require.True(t, ok)
	assert.Equal(t, "s", v)

	syms.Leave()
	syms.Leave()
	_, ok = syms.Lookup("host")
	assert.True(t, ok)
}

func TestLeaveOutermostPanics(t *testing.T) {
	syms := NewSymbols[int]()
	assert.PanicsWithValue(t, "cannot leave the outermost scope", func() {
		syms.Leave()
	})
}

func TestNameGenUnique(t *testing.T) {
	g := newNameGen()
	g.Reserve("A")
	assert.Equal(t, "t", g.Unique("t"))
	assert.Equal(t, "t0", g.Unique("t"))
	assert.Equal(t, "t1", g.Unique("t"))
	assert.Equal(t, "A0", g.Unique("A"))
	assert.Equal(t, "for0", g.Unique("for"))
	assert.Equal(t, "x_y", g.Unique("x.y"))
	assert.Equal(t, "t2d", g.Unique("2d"))

	seen := make(map[string]bool)
	for range 1000 {
		n := g.Unique("tmp")
		require.False(t, seen[n], n)
		require.False(t, IsReserved(n))
		seen[n] = true
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		ident   string
		wantErr string
	}{
		{"simple", "A", ""},
		{"underscore", "B_vals", ""},
		{"digits", "x2", ""},
		{"empty", "", "cannot be empty"},
		{"leading digit", "2x", "starts with a digit"},
		{"dash", "a-b", "invalid character"},
		{"double underscore", "__x", "implementation-reserved"},
		{"keyword", "while", "reserved word"},
		{"cuda builtin", "threadIdx", "reserved word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.ident)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
