package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("flow-1", "flow-2")
	assert.Equal(t, "flow-1", gen.Generate())
	assert.Equal(t, "flow-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}
