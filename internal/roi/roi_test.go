package roi

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSetAndKept(t *testing.T) {
	m := New(10, 7)
	assert.Equal(t, 0, m.Kept())

	m.Set(3, 4, true)
	m.Set(9, 6, true)
	m.Set(10, 0, true)
	assert.True(t, m.IsKept(3, 4))
	assert.True(t, m.IsKept(9, 6))
	assert.False(t, m.IsKept(4, 3))
	assert.False(t, m.IsKept(10, 0))
	assert.Equal(t, 2, m.Kept())

	m.Set(3, 4, false)
	assert.False(t, m.IsKept(3, 4))
}

func TestAll(t *testing.T) {
	m := All(13, 5)
	assert.Equal(t, 65, m.Kept())
	assert.True(t, m.IsKept(12, 4))
	assert.False(t, m.IsKept(13, 4))
	assert.False(t, m.IsKept(0, 5))
}

func TestSaveLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "roi.cbor")
	m := New(8, 4)
	m.Set(0, 0, true)
	m.Set(7, 3, true)
	m.Set(2, 1, true)
	require.NoError(t, m.Save(p))

	got, err := Load(p, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = Load(p, 4, 8)
	require.ErrorIs(t, err, ErrShape)
}
