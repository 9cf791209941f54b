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
	"github.com/Toagan/leadgen-scraper/internal/tui"
)

func runDiscovery(args []string) error {
	var term, region, mode, subdivisions, output, configPath string
	var budget, minReviews int
	var minRating float64
	var literal bool

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&term, "term", "", "Search term, e.g. \"zahnarzt\" (required)")
	fs.StringVar(&region, "region", "", "Region code, e.g. de, us, uk (required)")
	fs.StringVar(&mode, "mode", "balanced", "Coverage mode: coarse, balanced, high-coverage, maximal")
	fs.StringVar(&subdivisions, "subdivisions", "", "Comma-separated subdivision filter, e.g. \"Bayern,Hessen\"")
	fs.IntVar(&budget, "budget", 100, "Maximum accepted leads")
	fs.Float64Var(&minRating, "min-rating", 0, "Minimum star rating filter")
	fs.IntVar(&minReviews, "min-reviews", 0, "Minimum review count filter")
	fs.BoolVar(&literal, "literal", false, "Match the term as a literal phrase")
	fs.StringVar(&output, "output", "", "Output directory (default: config output_dir)")
	fs.StringVar(&configPath, "config", "", "Path to YAML config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadgen run [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  leadgen run -term zahnarzt -region de -budget 200\n")
		fmt.Fprintf(os.Stderr, "  leadgen run -term \"dental clinic\" -region us -mode high-coverage -min-rating 4\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if term == "" {
		return fmt.Errorf("-term is required")
	}
	if region == "" {
		return fmt.Errorf("-region is required")
	}

	eng, err := openEngine(configPath, output)
	if err != nil {
		return err
	}
	defer eng.Close()

	params := model.RunParams{
		Query:        term,
		Region:       strings.ToLower(strings.TrimSpace(region)),
		Mode:         model.Mode(mode),
		Subdivisions: splitList(subdivisions),
		Budget:       budget,
		Precision:    model.PrecisionBroad,
		Thresholds:   model.Thresholds{MinRating: minRating, MinReviews: minReviews},
		OutputDir:    eng.cfg.OutputDir,
	}
	if literal {
		params.Precision = model.PrecisionLiteral
	}

	startTime := time.Now()
	runID, err := eng.mgr.Start(params)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Run: %s\n", runID)
	fmt.Fprintf(os.Stderr, "Log: %s\n", eng.logPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping at next checkpoint...")
		eng.mgr.Cancel(runID)
	}()

	st := waitForRun(eng.mgr, runID)
	duration := time.Since(startTime).Truncate(time.Second)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Discovery %s\n", st.State)
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Term:       %s\n", params.Query)
	fmt.Fprintf(os.Stderr, "  Region:     %s (%s)\n", params.Region, params.Mode)
	fmt.Fprintf(os.Stderr, "  Cells:      %d/%d\n", st.CellIndex+1, st.TotalCells)
	fmt.Fprintf(os.Stderr, "  Seen:       %d\n", st.SeenCount)
	fmt.Fprintf(os.Stderr, "  Accepted:   %d/%d\n", st.AcceptedCount, params.Budget)
	fmt.Fprintf(os.Stderr, "  Credits:    %d\n", st.Credits)
	fmt.Fprintf(os.Stderr, "  Errors:     %d\n", len(st.Errors))
	fmt.Fprintf(os.Stderr, "  Duration:   %s\n", duration)
	fmt.Fprintf(os.Stderr, "  Export:     %s\n", st.ExportPath)
	fmt.Fprintf(os.Stderr, "  Database:   %s\n", eng.dbPath)
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")

	tui.SaveRecent(st.ExportPath)

	return nil
}

// waitForRun polls until the run reaches a terminal state, printing progress.
func waitForRun(mgr *run.Manager, runID string) run.Status {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		st, ok := mgr.Status(runID)
		if !ok {
			return run.Status{}
		}
		fmt.Fprintf(os.Stderr, "\rCell %d/%d  accepted %d  seen %d  credits %d ",
			st.CellIndex+1, st.TotalCells, st.AcceptedCount, st.SeenCount, st.Credits)
		if st.State.Terminal() {
			fmt.Fprintln(os.Stderr)
			return st
		}
	}
	return run.Status{}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
