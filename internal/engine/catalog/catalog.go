package catalog

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/Toagan/leadgen-scraper/internal/engine/geo"
	"github.com/Toagan/leadgen-scraper/internal/model"
)

//go:embed data/*.csv
var cityFS embed.FS

// sourceByRegion maps a region code to its embedded city table.
var sourceByRegion = map[string]string{
	"de": "data/cities_de.csv",
	"us": "data/cities_us.csv",
	"uk": "data/cities_uk.csv",
	"fr": "data/cities_fr.csv",
	"es": "data/cities_es.csv",
	"ca": "data/cities_ca.csv",
	"au": "data/cities_au.csv",
}

// Population floors per mode. Maximal has no floor and adds grid cells.
var modeFloor = map[model.Mode]int{
	model.ModeCoarse:       200000,
	model.ModeBalanced:     50000,
	model.ModeHighCoverage: 0,
	model.ModeMaximal:      0,
}

const (
	cityZoom = 14
	gridZoom = 13
	// gridSpanZoom controls grid cell density in maximal mode. Zoom 11 keeps
	// country-sized regions in the low thousands of cells.
	gridSpanZoom = 11
)

// ConfigError is a non-recoverable configuration problem: unknown region,
// unknown mode, or an unusable city table. It fails a run before it starts.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// Regions returns the region codes with embedded city tables, sorted.
func Regions() []string {
	codes := make([]string, 0, len(sourceByRegion))
	for code := range sourceByRegion {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Build loads the ordered cell catalog for a region. Cells are classified into
// subdivisions, filtered by the subdivision set (empty = all), and sorted by
// weight descending with id as the tie-break so iteration order is reproducible.
func Build(region string, mode model.Mode, subdivisions []string) ([]model.Cell, error) {
	source, ok := sourceByRegion[region]
	if !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown region %q", region)}
	}
	f, err := cityFS.Open(source)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("city table for %q missing: %v", region, err)}
	}
	defer f.Close()
	return build(region, mode, subdivisions, f)
}

// BuildFromFile is Build over an operator-supplied city table on disk,
// used when the config file overrides a region's catalog source.
func BuildFromFile(path, region string, mode model.Mode, subdivisions []string) ([]model.Cell, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("city table %s: %v", path, err)}
	}
	defer f.Close()
	return build(region, mode, subdivisions, f)
}

func build(region string, mode model.Mode, subdivisions []string, r io.Reader) ([]model.Cell, error) {
	if _, ok := modeFloor[mode]; !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	cities, err := parseCityTable(r)
	if err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	if len(cities) == 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("region %q has no cell data", region)}
	}

	floor := modeFloor[mode]
	var cells []model.Cell
	for _, c := range cities {
		if c.Weight < floor {
			continue
		}
		c.Region = region
		c.Zoom = cityZoom
		c.Subdivision = geo.Classify(region, c.Lat, c.Lng)
		cells = append(cells, c)
	}

	if mode == model.ModeMaximal {
		bound := cityBound(cities)
		// When the region has boundary data, grid cells outside every known
		// subdivision are open water or foreign territory and are dropped
		// before they cost a provider call.
		cull := len(geo.Subdivisions(region)) > 0
		for _, g := range GridCells(bound, gridSpanZoom) {
			g.Region = region
			g.Zoom = gridZoom
			g.Subdivision = geo.Classify(region, g.Lat, g.Lng)
			if cull && g.Subdivision == geo.Unclassified {
				continue
			}
			cells = append(cells, g)
		}
	}

	if len(subdivisions) > 0 {
		wanted := make(map[string]bool, len(subdivisions))
		for _, s := range subdivisions {
			wanted[strings.ToLower(strings.TrimSpace(s))] = true
		}
		var kept []model.Cell
		for _, c := range cells {
			// Unclassified cells are excluded whenever a filter is active.
			if c.Subdivision != "" && wanted[strings.ToLower(c.Subdivision)] {
				kept = append(kept, c)
			}
		}
		cells = kept
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Weight != cells[j].Weight {
			return cells[i].Weight > cells[j].Weight
		}
		return cells[i].ID < cells[j].ID
	})

	return cells, nil
}

// parseCityTable reads "name,latitude,longitude,population" lines. A header
// row and a leading BOM are tolerated, matching the shipped tables.
func parseCityTable(r io.Reader) ([]model.Cell, error) {
	var cells []model.Cell
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		line := sc.Bytes()
		if first {
			line = bytes.TrimPrefix(line, []byte{0xEF, 0xBB, 0xBF})
			first = false
		}
		text := strings.TrimSpace(string(line))
		if text == "" || strings.HasPrefix(strings.ToLower(text), "name,latitude") {
			continue
		}
		parts := strings.Split(text, ",")
		if len(parts) < 3 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if name == "" || errLat != nil || errLng != nil {
			continue
		}
		weight := 0
		if len(parts) >= 4 {
			weight, _ = strconv.Atoi(strings.TrimSpace(parts[3]))
		}
		cells = append(cells, model.Cell{
			ID:     cellID(name),
			Name:   name,
			Lat:    lat,
			Lng:    lng,
			Weight: weight,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading city table: %w", err)
	}
	return cells, nil
}

func cellID(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
			}
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// cityBound computes the padded bounding box of the city table, used as the
// extent for maximal-mode grid generation.
func cityBound(cities []model.Cell) orb.Bound {
	mp := make(orb.MultiPoint, 0, len(cities))
	for _, c := range cities {
		mp = append(mp, orb.Point{c.Lng, c.Lat})
	}
	b := mp.Bound()
	const pad = 0.2
	b.Min = orb.Point{b.Min.X() - pad, b.Min.Y() - pad}
	b.Max = orb.Point{b.Max.X() + pad, b.Max.Y() + pad}
	return b
}
