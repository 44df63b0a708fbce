package estim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"headstage-go/errcode"
)

func TestCurrentCode_Endpoints(t *testing.T) {
	lo, err := CurrentCode(-2500)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), lo)

	hi, err := CurrentCode(2500)
	require.NoError(t, err)
	assert.Equal(t, uint32(65535), hi)

	// Midpoint: (0+2500)/5000*65535 = 32767.5, rounded half away from zero.
	mid, err := CurrentCode(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(32768), mid)
}

func TestCurrentCode_Monotonic(t *testing.T) {
	prev := uint32(0)
	for uA := -2500.0; uA <= 2500.0; uA += 12.5 {
		code, err := CurrentCode(uA)
		require.NoError(t, err, "uA=%v", uA)
		assert.GreaterOrEqual(t, code, prev, "uA=%v", uA)
		prev = code
	}
}

func TestCurrentCode_RoundTripWithinOneLSB(t *testing.T) {
	const lsbUA = 2 * MaxCurrentUA / 65535
	for _, uA := range []float64{-2500, -1234.5, -0.1, 0, 1, 99.9, 2499.99, 2500} {
		code, err := CurrentCode(uA)
		require.NoError(t, err)
		back := CurrentFromCode(code)
		assert.InDelta(t, uA, back, lsbUA, "uA=%v code=%d", uA, code)
	}
}

func TestCurrentCode_RejectsOutOfRange(t *testing.T) {
	for _, uA := range []float64{-2500.01, 2500.01, 1e9, -1e9, math.NaN()} {
		_, err := CurrentCode(uA)
		require.Error(t, err, "uA=%v", uA)
		assert.Equal(t, errcode.OutOfRange, errcode.Of(err), "uA=%v", uA)
	}
}
