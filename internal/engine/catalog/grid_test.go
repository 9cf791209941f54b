package catalog

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridCellsCoverBound(t *testing.T) {
	b := orb.Bound{Min: orb.Point{8.0, 50.0}, Max: orb.Point{9.0, 51.0}}
	cells := GridCells(b, 11)
	require.NotEmpty(t, cells)

	ids := make(map[string]bool, len(cells))
	for _, c := range cells {
		assert.True(t, c.Grid)
		assert.GreaterOrEqual(t, c.Lat, b.Min.Y())
		assert.LessOrEqual(t, c.Lat, b.Max.Y())
		assert.GreaterOrEqual(t, c.Lng, b.Min.X())
		assert.LessOrEqual(t, c.Lng, b.Max.X())
		assert.False(t, ids[c.ID], "grid ids are unique")
		ids[c.ID] = true
	}
}

func TestGridCellsDensityGrowsWithZoom(t *testing.T) {
	b := orb.Bound{Min: orb.Point{8.0, 50.0}, Max: orb.Point{9.0, 51.0}}
	coarse := GridCells(b, 10)
	fine := GridCells(b, 12)
	assert.Greater(t, len(fine), len(coarse))
}
