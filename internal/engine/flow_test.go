package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}

	first := gen.Generate()
	id, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Len(t, first, 36)

	assert.NotEqual(t, first, gen.Generate())
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("mt-a", "mt-b")

	assert.Equal(t, "mt-a", gen.Generate())
	assert.Equal(t, "mt-b", gen.Generate())
	assert.PanicsWithValue(t, "FixedGenerator: all ids exhausted", func() { gen.Generate() })
}

func TestEngine_Defaults(t *testing.T) {
	f := newFixture(t)
	e := New(f.store, f.graph, f.registry)

	assert.Equal(t, DefaultWorkers, e.Workers())
	assert.Equal(t, DefaultStuckAfter, e.StuckAfter())
	assert.IsType(t, SystemClock{}, e.clock)
	assert.IsType(t, UUIDv7Generator{}, e.ids)
	assert.Same(t, f.graph, e.Graph())
	assert.Same(t, f.store, e.Store())

	e = New(f.store, f.graph, f.registry, WithWorkers(0))
	assert.Equal(t, 1, e.Workers())
}
