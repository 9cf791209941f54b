// Package geo assigns catalog cells to administrative subdivisions using a
// fixed table of boundary approximations. Lookups are pure functions of the
// coordinates so catalog builds stay deterministic.
package geo

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Unclassified is the sentinel tag for cells outside every known boundary.
const Unclassified = ""

type subdivision struct {
	name string
	poly orb.Polygon
}

// box builds a rectangular approximation ring. Rings are closed because
// planar containment expects closed polygons.
func box(minLng, minLat, maxLng, maxLat float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minLng, minLat},
		{maxLng, minLat},
		{maxLng, maxLat},
		{minLng, maxLat},
		{minLng, minLat},
	}}
}

// regionSubdivisions is ordered: the first containing polygon wins, so small
// enclaves (city-states, capital territories) come before their surroundings.
// These are bounding approximations; cities right on a border can resolve to
// the neighboring subdivision.
var regionSubdivisions = map[string][]subdivision{
	"de": {
		{"Berlin", box(13.09, 52.33, 13.76, 52.68)},
		{"Hamburg", box(9.70, 53.39, 10.33, 53.74)},
		{"Bremen", box(8.48, 53.01, 8.99, 53.61)},
		{"Saarland", box(6.35, 49.11, 7.40, 49.64)},
		{"Baden-Württemberg", box(7.50, 47.50, 10.50, 49.65)},
		{"Bayern", box(8.97, 47.27, 13.84, 50.56)},
		{"Sachsen", box(12.00, 50.17, 15.04, 51.68)},
		{"Thüringen", box(9.87, 50.20, 12.65, 51.20)},
		{"Sachsen-Anhalt", box(10.56, 50.94, 13.19, 53.04)},
		{"Nordrhein-Westfalen", box(5.86, 50.60, 9.46, 52.25)},
		{"Hessen", box(7.77, 49.39, 10.24, 51.66)},
		{"Rheinland-Pfalz", box(6.11, 48.97, 8.51, 50.94)},
		{"Schleswig-Holstein", box(7.86, 53.36, 11.31, 55.06)},
		{"Mecklenburg-Vorpommern", box(10.59, 53.11, 14.41, 54.69)},
		{"Brandenburg", box(11.27, 51.36, 14.77, 53.56)},
		{"Niedersachsen", box(6.60, 51.29, 11.60, 53.90)},
	},
	"us": {
		{"Northeast", box(-80.60, 39.50, -66.90, 47.50)},
		{"Midwest", box(-104.06, 36.97, -80.50, 49.40)},
		{"South", box(-106.65, 24.50, -75.00, 39.50)},
		{"West", box(-180.00, 18.00, -102.00, 72.00)},
	},
	"uk": {
		{"Northern Ireland", box(-8.20, 54.00, -5.30, 55.40)},
		{"Scotland", box(-8.00, 55.20, -0.50, 60.90)},
		{"Wales", box(-5.40, 51.35, -2.65, 53.20)},
		{"England", box(-6.50, 49.90, 1.80, 55.30)},
	},
	"fr": {
		{"Île-de-France", box(1.45, 48.12, 3.56, 49.24)},
		{"Provence-Alpes-Côte d'Azur", box(4.70, 43.00, 7.70, 45.10)},
		{"Occitanie", box(-0.50, 42.30, 4.90, 45.00)},
		{"Auvergne-Rhône-Alpes", box(2.90, 44.10, 7.20, 46.80)},
		{"Nouvelle-Aquitaine", box(-1.80, 43.30, 1.40, 47.10)},
		{"Grand Est", box(3.90, 47.40, 8.30, 50.20)},
		{"Hauts-de-France", box(1.50, 49.50, 4.30, 51.10)},
		{"Bretagne", box(-5.20, 47.40, -1.00, 48.90)},
		{"Pays de la Loire", box(-2.60, 46.20, 0.90, 48.60)},
	},
	"es": {
		{"Canarias", box(-18.20, 27.50, -13.30, 29.50)},
		{"Andalucía", box(-7.60, 36.00, -1.60, 38.70)},
		{"Cataluña", box(0.20, 40.50, 3.30, 42.90)},
		{"Comunidad de Madrid", box(-4.60, 39.90, -3.10, 41.20)},
		{"Comunidad Valenciana", box(-1.60, 37.80, 0.70, 40.80)},
		{"País Vasco", box(-3.45, 42.50, -1.70, 43.50)},
		{"Galicia", box(-9.40, 41.80, -6.70, 43.80)},
	},
	"ca": {
		{"British Columbia", box(-139.00, 48.30, -114.50, 60.00)},
		{"Alberta", box(-120.00, 49.00, -110.00, 60.00)},
		{"Saskatchewan", box(-110.00, 49.00, -101.40, 60.00)},
		{"Manitoba", box(-101.40, 49.00, -95.20, 60.00)},
		{"Ontario", box(-95.20, 41.60, -74.30, 56.90)},
		{"Quebec", box(-79.80, 45.00, -57.10, 62.60)},
		{"Atlantic", box(-66.00, 43.30, -52.60, 48.50)},
	},
	"au": {
		{"Australian Capital Territory", box(148.70, -35.90, 149.40, -35.10)},
		{"Victoria", box(140.90, -39.20, 150.20, -35.90)},
		{"Tasmania", box(144.50, -43.70, 148.50, -40.60)},
		{"New South Wales", box(141.00, -37.60, 153.70, -28.20)},
		{"Queensland", box(138.00, -29.00, 153.60, -10.00)},
		{"Northern Territory", box(129.00, -26.00, 138.00, -10.90)},
		{"South Australia", box(129.00, -38.10, 141.00, -26.00)},
		{"Western Australia", box(112.00, -35.20, 129.00, -13.50)},
	},
}

// Classify returns the subdivision tag for a coordinate, or Unclassified when
// the point falls outside every known boundary of the region.
func Classify(region string, lat, lng float64) string {
	for _, s := range regionSubdivisions[region] {
		if planar.PolygonContains(s.poly, orb.Point{lng, lat}) {
			return s.name
		}
	}
	return Unclassified
}

// Subdivisions lists the known subdivision names for a region, sorted.
func Subdivisions(region string) []string {
	subs := regionSubdivisions[region]
	names := make([]string, 0, len(subs))
	for _, s := range subs {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}
