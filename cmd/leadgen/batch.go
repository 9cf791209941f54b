package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Toagan/leadgen-scraper/internal/engine/run"
	"github.com/Toagan/leadgen-scraper/internal/model"
)

func runBatch(args []string) error {
	var regions, term, mode, subdivisions, output, configPath string
	var budget, minReviews int
	var minRating float64
	var literal bool

	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	fs.StringVar(&regions, "regions", "", "Comma-separated region codes, e.g. \"de,us,uk\" (required)")
	fs.StringVar(&term, "term", "", "Search term for regions without batch_terms in the config")
	fs.StringVar(&mode, "mode", "balanced", "Coverage mode: coarse, balanced, high-coverage, maximal")
	fs.StringVar(&subdivisions, "subdivisions", "", "Comma-separated subdivision filter")
	fs.IntVar(&budget, "budget", 100, "Maximum accepted leads per sub-run")
	fs.Float64Var(&minRating, "min-rating", 0, "Minimum star rating filter")
	fs.IntVar(&minReviews, "min-reviews", 0, "Minimum review count filter")
	fs.BoolVar(&literal, "literal", false, "Match terms as literal phrases")
	fs.StringVar(&output, "output", "", "Output directory (default: config output_dir)")
	fs.StringVar(&configPath, "config", "", "Path to YAML config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadgen batch [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  leadgen batch -regions de,uk -term \"dental clinic\" -budget 150\n")
		fmt.Fprintf(os.Stderr, "  leadgen batch -regions de,us -config leadgen.yaml\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	regionList := splitList(regions)
	if len(regionList) == 0 {
		return fmt.Errorf("-regions is required")
	}

	eng, err := openEngine(configPath, output)
	if err != nil {
		return err
	}
	defer eng.Close()

	if term == "" && len(eng.cfg.BatchTerms) == 0 {
		return fmt.Errorf("-term is required when the config has no batch_terms")
	}

	params := run.BatchParams{
		Regions:       regionList,
		DefaultQuery:  term,
		TermsByRegion: eng.cfg.BatchTerms,
		Mode:          model.Mode(mode),
		Subdivisions:  splitList(subdivisions),
		Budget:        budget,
		Precision:     model.PrecisionBroad,
		Thresholds:    model.Thresholds{MinRating: minRating, MinReviews: minReviews},
		OutputDir:     eng.cfg.OutputDir,
	}
	if literal {
		params.Precision = model.PrecisionLiteral
	}

	startTime := time.Now()
	batchID, err := eng.mgr.StartBatch(params)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Batch: %s (%s)\n", batchID, strings.Join(regionList, ", "))
	fmt.Fprintf(os.Stderr, "Log: %s\n", eng.logPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping at next checkpoint...")
		eng.mgr.CancelBatch(batchID)
	}()

	st := waitForBatch(eng.mgr, batchID)
	duration := time.Since(startTime).Truncate(time.Second)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	totalAccepted := 0
	for _, id := range st.RunIDs {
		rs, ok := eng.mgr.Status(id)
		if !ok {
			continue
		}
		totalAccepted += rs.AcceptedCount
		fmt.Fprintf(os.Stderr, "  %-4s %-20q %-9s %d leads\n", rs.Region, rs.Query, rs.State, rs.AcceptedCount)
	}
	fmt.Fprintf(os.Stderr, "  ----\n")
	fmt.Fprintf(os.Stderr, "  Sub-runs:   %d\n", len(st.RunIDs))
	fmt.Fprintf(os.Stderr, "  Accepted:   %d\n", totalAccepted)
	fmt.Fprintf(os.Stderr, "  Duration:   %s\n", duration)
	fmt.Fprintf(os.Stderr, "  Database:   %s\n", eng.dbPath)
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")

	return nil
}

// waitForBatch polls until the batch worker finishes, showing the active
// sub-run's progress.
func waitForBatch(mgr *run.Manager, batchID string) run.BatchStatus {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		st, ok := mgr.BatchStatus(batchID)
		if !ok {
			return run.BatchStatus{}
		}
		if n := len(st.RunIDs); n > 0 {
			if rs, ok := mgr.Status(st.RunIDs[n-1]); ok {
				fmt.Fprintf(os.Stderr, "\rRun %d (%s)  cell %d/%d  accepted %d ",
					n, rs.Region, rs.CellIndex+1, rs.TotalCells, rs.AcceptedCount)
			}
		}
		if st.Done {
			fmt.Fprintln(os.Stderr)
			return st
		}
	}
	return run.BatchStatus{}
}
