package catalog

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

// zoomToSpanDegrees converts a zoom level to the approximate span in degrees
// for one grid cell. At zoom 13 one tile covers ~0.044 degrees; a 60px cell
// in a 256px tile covers about 0.044 * 60/256 ≈ 0.01 degrees.
func zoomToSpanDegrees(zoom int) float64 {
	tileSpan := 360.0 / math.Pow(2, float64(zoom))
	return tileSpan * 60.0 / 256.0
}

// GridCells covers the bound with weight-0 cells for maximal mode. Cell ids
// are row/col based so the catalog tie-break keeps grid iteration stable.
func GridCells(b orb.Bound, zoom int) []model.Cell {
	span := zoomToSpanDegrees(zoom)

	var cells []model.Cell
	row := 0
	for lat := b.Min.Y() + span/2; lat < b.Max.Y(); lat += span {
		col := 0
		// Adjust longitude span for Mercator distortion
		lngSpan := span / math.Cos(lat*math.Pi/180.0)
		for lng := b.Min.X() + lngSpan/2; lng < b.Max.X(); lng += lngSpan {
			cells = append(cells, model.Cell{
				ID:   fmt.Sprintf("grid-%04d-%04d", row, col),
				Name: fmt.Sprintf("grid %d/%d", row, col),
				Lat:  lat,
				Lng:  lng,
				Grid: true,
			})
			col++
		}
		row++
	}

	return cells
}
