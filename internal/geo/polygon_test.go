package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuetrack/engine/internal/model"
)

func square(x0, z0, x1, z1 float64) []model.Vertex {
	return []model.Vertex{
		{X: x0, Z: z0},
		{X: x1, Z: z0},
		{X: x1, Z: z1},
		{X: x0, Z: z1},
	}
}

func TestPolygonContainsInterior(t *testing.T) {
	p, err := NewPolygon("roi-1", square(0, 0, 10, 10))
	require.NoError(t, err)
	assert.True(t, p.Contains(5, 5))
	assert.False(t, p.Contains(50, 50))
}

func TestPolygonContainsEdgeIsInside(t *testing.T) {
	p, err := NewPolygon("roi-1", square(0, 0, 10, 10))
	require.NoError(t, err)
	assert.True(t, p.Contains(0, 5), "point on left edge")
	assert.True(t, p.Contains(10, 5), "point on right edge")
	assert.True(t, p.Contains(5, 0), "point on bottom edge")
	assert.True(t, p.Contains(0, 0), "corner vertex")
}

func TestPolygonRejectsTooFewVertices(t *testing.T) {
	_, err := NewPolygon("roi-1", []model.Vertex{{X: 0, Z: 0}, {X: 1, Z: 1}})
	assert.ErrorIs(t, err, errTooFewVertices)
}

func TestPolygonRejectsSelfIntersecting(t *testing.T) {
	bowtie := []model.Vertex{
		{X: 0, Z: 0},
		{X: 10, Z: 10},
		{X: 10, Z: 0},
		{X: 0, Z: 10},
	}
	_, err := NewPolygon("roi-1", bowtie)
	assert.ErrorIs(t, err, errSelfIntersecting)
}

func TestPolygonStableAcrossRepeatedEvaluation(t *testing.T) {
	p, err := NewPolygon("roi-1", square(0, 0, 10, 10))
	require.NoError(t, err)
	first := p.Contains(3.33333, 7.77777)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, p.Contains(3.33333, 7.77777))
	}
}

func TestAABBPreFilterAgreesWithExactTest(t *testing.T) {
	p, err := NewPolygon("roi-1", square(0, 0, 10, 10))
	require.NoError(t, err)
	// Outside the bounding box entirely: must be false via the pre-filter.
	assert.False(t, p.Contains(-5, -5))
	// Inside the bounding box but outside an L-shaped polygon would need
	// a concave test; the square has no such region, so this only
	// exercises that in-bbox points fall through to the exact test.
	assert.True(t, p.Contains(1, 1))
}
