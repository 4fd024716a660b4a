package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, 1<<20, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulUint64(t *testing.T) {
	got, err := MulUint64(1<<20, 48)
	require.NoError(t, err)
	assert.Equal(t, uint64(48<<20), got)

	_, err = MulUint64(1<<40, 1<<30)
	assert.ErrorIs(t, err, ErrOverflow)

	got, err = MulUint64(0, math.MaxUint64)
	require.NoError(t, err)
	assert.Zero(t, got)
}
