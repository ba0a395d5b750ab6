package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodec_RejectsBadDimension(t *testing.T) {
	_, err := NewCodec(Euclidean, None, 0)
	assert.Error(t, err)

	_, err = NewCodec(Euclidean, None, 20000)
	assert.Error(t, err)
}

func TestNewCodec_RejectsBinaryLorentz(t *testing.T) {
	_, err := NewCodec(Lorentz, Binary, 4)
	assert.Error(t, err)
}

func TestRecordSize(t *testing.T) {
	none, err := NewCodec(Euclidean, None, 8)
	require.NoError(t, err)
	assert.Equal(t, 64, none.RecordSize())

	scalar, err := NewCodec(Euclidean, ScalarI8, 8)
	require.NoError(t, err)
	assert.Equal(t, 12, scalar.RecordSize())

	binary, err := NewCodec(Euclidean, Binary, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, binary.RecordSize())

	binaryOdd, err := NewCodec(Euclidean, Binary, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, binaryOdd.RecordSize())
}

func TestEuclidean_RoundtripAndDistance(t *testing.T) {
	c, err := NewCodec(Euclidean, None, 3)
	require.NoError(t, err)

	v := Raw{0.1, 0.2, 0.3}
	require.NoError(t, c.Validate(v))
	rec := c.Encode(v)

	d := c.Distance(v, rec)
	assert.InDelta(t, 0, d, 1e-9)
}

func TestCosine_RejectsZeroVector(t *testing.T) {
	c, err := NewCodec(Cosine, None, 3)
	require.NoError(t, err)
	assert.Error(t, c.Validate(Raw{0, 0, 0}))
}

func TestCosine_IdenticalVectorsHaveZeroDistance(t *testing.T) {
	c, err := NewCodec(Cosine, None, 3)
	require.NoError(t, err)

	v := Raw{0.1, 0.2, 0.3}
	require.NoError(t, c.Validate(v))
	rec := c.Encode(v)

	assert.InDelta(t, 0, c.Distance(v, rec), 1e-9)
}

func TestPoincare_RejectsPointOutsideBall(t *testing.T) {
	c, err := NewCodec(Poincare, None, 2)
	require.NoError(t, err)
	assert.Error(t, c.Validate(Raw{0.9, 0.9}))
}

func TestPoincare_OriginDistanceZero(t *testing.T) {
	c, err := NewCodec(Poincare, None, 2)
	require.NoError(t, err)

	origin := Raw{0, 0}
	require.NoError(t, c.Validate(origin))
	rec := c.Encode(origin)
	assert.InDelta(t, 0, c.Distance(origin, rec), 1e-6)
}

func TestPoincare_ScenarioOrdering(t *testing.T) {
	// spec.md §8 scenario 2: dim=2, points at increasing radius from the
	// origin must come back in increasing distance order.
	c, err := NewCodec(Poincare, None, 2)
	require.NoError(t, err)

	origin := Raw{0.0, 0.0}
	near := Raw{0.3, 0.0}
	far := Raw{0.5, 0.2}

	for _, v := range []Raw{origin, near, far} {
		require.NoError(t, c.Validate(v))
	}

	dNear := c.Distance(origin, c.Encode(near))
	dFar := c.Distance(origin, c.Encode(far))

	assert.InDelta(t, 0.31, dNear, 0.02)
	assert.InDelta(t, 0.65, dFar, 0.05)
	assert.Less(t, dNear, dFar)
}

func TestLorentz_RejectsOffSheetPoint(t *testing.T) {
	c, err := NewCodec(Lorentz, None, 3)
	require.NoError(t, err)
	assert.Error(t, c.Validate(Raw{1, 1, 1}))
}

func TestLorentz_RejectsNonPositiveTime(t *testing.T) {
	c, err := NewCodec(Lorentz, None, 2)
	require.NoError(t, err)
	assert.Error(t, c.Validate(Raw{-1, 0}))
}

func TestLorentz_AcceptsPointOnSheet(t *testing.T) {
	c, err := NewCodec(Lorentz, None, 2)
	require.NoError(t, err)

	// x0 = cosh(t), x1 = sinh(t) lies on the 2D hyperboloid for any t.
	t0 := 0.7
	v := Raw{math.Cosh(t0), math.Sinh(t0)}
	assert.NoError(t, c.Validate(v))
}

func TestLorentz_IdenticalPointsZeroDistance(t *testing.T) {
	c, err := NewCodec(Lorentz, None, 2)
	require.NoError(t, err)

	t0 := 1.2
	v := Raw{math.Cosh(t0), math.Sinh(t0)}
	require.NoError(t, c.Validate(v))
	rec := c.Encode(v)
	assert.InDelta(t, 0, c.Distance(v, rec), 1e-6)
}

func TestValidateFinite_RejectsNaN(t *testing.T) {
	c, err := NewCodec(Euclidean, None, 2)
	require.NoError(t, err)
	assert.Error(t, c.Validate(Raw{math.NaN(), 0}))
}

func TestValidateFinite_RejectsDimensionMismatch(t *testing.T) {
	c, err := NewCodec(Euclidean, None, 3)
	require.NoError(t, err)
	assert.Error(t, c.Validate(Raw{0.1, 0.2}))
}

func TestBinary_DistanceIsHamming(t *testing.T) {
	c, err := NewCodec(Euclidean, Binary, 8)
	require.NoError(t, err)

	v := Raw{1, 1, 1, 1, -1, -1, -1, -1}
	require.NoError(t, c.Validate(v))
	rec := c.Encode(v)

	assert.Equal(t, 0.0, c.Distance(v, rec))

	flipped := Raw{-1, 1, 1, 1, -1, -1, -1, -1}
	assert.Equal(t, 1.0, c.Distance(flipped, rec))
}
