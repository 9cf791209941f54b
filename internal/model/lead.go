package model

import "time"

// Cell is a bounded geographic search unit: a city from the catalog tables
// or a generated grid cell in maximal mode. Immutable once the catalog is built.
type Cell struct {
	ID          string
	Name        string
	Region      string
	Lat         float64
	Lng         float64
	Weight      int  // priority weight, population for city cells, 0 for grid cells
	Zoom        int  // location-bias zoom hint for the provider
	Grid        bool // synthetic maximal-mode cell, searched by coordinate bias only
	Subdivision string
}

// Lead is a business listing returned by the search provider.
type Lead struct {
	PlaceRef    string  `json:"place_ref"` // cid, falling back to placeId
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Phone       string  `json:"phone"`
	Website     string  `json:"website"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
	Category    string  `json:"category"`
	Categories  string  `json:"categories"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	OpenHours   string  `json:"open_hours"`
	PriceRange  string  `json:"price_range"`
	Description string  `json:"description"`
	Cell        string  `json:"cell"`
	Query       string  `json:"query"`
}

// ProviderPage is one page of raw listings from the provider.
type ProviderPage struct {
	Leads      []Lead
	NextOffset int // -1 when the result set is exhausted
	Credits    int
}

// Mode selects the catalog source and population floor. Closed set.
type Mode string

const (
	ModeCoarse       Mode = "coarse"        // major cities only
	ModeBalanced     Mode = "balanced"      // default
	ModeHighCoverage Mode = "high-coverage" // every catalog city
	ModeMaximal      Mode = "maximal"       // cities plus fine grid cells
)

// Precision controls literal-phrase vs broadened matching.
type Precision string

const (
	PrecisionBroad   Precision = "broad"
	PrecisionLiteral Precision = "literal"
)

// Thresholds are the post-dedup quality gates. Zero values disable a gate.
type Thresholds struct {
	MinRating  float64
	MinReviews int
}

// RunParams holds all configuration for one discovery run.
type RunParams struct {
	Query        string
	Region       string
	Mode         Mode
	Subdivisions []string // empty = all
	Budget       int      // global lead budget
	Precision    Precision
	Thresholds   Thresholds
	OutputDir    string
}

// HistoryEntry is the immutable summary persisted after a run reaches
// a terminal state.
type HistoryEntry struct {
	RunID      string
	Query      string
	Region     string
	Mode       string
	Budget     int
	Accepted   int
	Credits    int
	ExportPath string
	FinalState string
	StartedAt  time.Time
	FinishedAt time.Time
}
