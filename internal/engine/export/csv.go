// Package export writes accepted leads to CSV incrementally, one row per
// lead as it is discovered, so a cancelled run still leaves a usable file.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

var header = []string{
	"query", "cell", "name", "address", "phone", "website",
	"rating", "review_count", "category", "categories",
	"lat", "lng", "price_range", "place_ref",
}

// CSVSink appends leads to a run-specific file. Runs never share a sink.
type CSVSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	path string
}

// Filename builds the export name:
// <sanitized-term>_<region>_<unix-timestamp>.csv.
func Filename(term, region string) string {
	var b strings.Builder
	for _, r := range term {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return fmt.Sprintf("%s_%s_%d.csv", b.String(), region, time.Now().Unix())
}

// NewCSVSink creates the file and writes the header row.
func NewCSVSink(dir, name string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating export file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	w.Flush()
	return &CSVSink{f: f, w: w, path: path}, nil
}

// Path returns the export file location.
func (s *CSVSink) Path() string { return s.path }

// Append writes one lead row and flushes so the file stays current even if
// the process dies. Implements run.ResultSink.
func (s *CSVSink) Append(_ string, l model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(row(l)); err != nil {
		return fmt.Errorf("writing lead row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flushing export: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}

// WriteAll dumps a lead list to a CSV file in one pass, used by the export
// subcommand to convert a run database after the fact.
func WriteAll(path string, leads []model.Lead) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(header); err != nil {
		return err
	}
	for _, l := range leads {
		if err := w.Write(row(l)); err != nil {
			return err
		}
	}
	return nil
}

func row(l model.Lead) []string {
	return []string{
		l.Query,
		l.Cell,
		l.Name,
		l.Address,
		l.Phone,
		l.Website,
		fmt.Sprintf("%.1f", l.Rating),
		strconv.Itoa(l.ReviewCount),
		l.Category,
		l.Categories,
		fmt.Sprintf("%.6f", l.Lat),
		fmt.Sprintf("%.6f", l.Lng),
		l.PriceRange,
		l.PlaceRef,
	}
}
