package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Toagan/leadgen-scraper/internal/engine/export"
	"github.com/Toagan/leadgen-scraper/internal/engine/storage"
	"github.com/Toagan/leadgen-scraper/internal/model"
)

func runExport(args []string) error {
	var dbPath, outputPath, runID, format string

	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.StringVar(&dbPath, "db", "", "Path to .db file (required)")
	fs.StringVar(&outputPath, "output", "", "Output file path (default: same dir as db)")
	fs.StringVar(&runID, "run", "", "Export a single run's leads (default: all)")
	fs.StringVar(&format, "format", "csv", "Export format: csv")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadgen export [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  leadgen export -db ./exports/leadgen.db\n")
		fmt.Fprintf(os.Stderr, "  leadgen export -db leadgen.db -run 6f1a... -output bayern.csv\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if dbPath == "" {
		return fmt.Errorf("-db is required")
	}
	if format != "csv" {
		return fmt.Errorf("unsupported format: %s (only csv supported)", format)
	}

	// Default output path
	if outputPath == "" {
		dir := filepath.Dir(dbPath)
		base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
		outputPath = filepath.Join(dir, base+".csv")
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	defer store.Close()

	var leads []model.Lead
	if runID != "" {
		leads, err = store.LeadsByRun(runID)
	} else {
		leads, err = store.Leads()
	}
	if err != nil {
		return fmt.Errorf("loading leads: %w", err)
	}
	if len(leads) == 0 {
		return fmt.Errorf("no leads found in database")
	}

	if err := export.WriteAll(outputPath, leads); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %d leads to %s\n", len(leads), outputPath)
	return nil
}
