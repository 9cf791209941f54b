package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Toagan/leadgen-scraper/internal/engine/catalog"
	"github.com/Toagan/leadgen-scraper/internal/tui"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			if err := runDiscovery(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "batch":
			if err := runBatch(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "export":
			if err := runExport(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "regions":
			fmt.Println(strings.Join(catalog.Regions(), "\n"))
			return
		case "version":
			fmt.Println("leadgen " + version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	// No subcommand → launch TUI
	if err := tui.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `leadgen - geo-partitioned business lead discovery

Usage:
  leadgen                Launch interactive TUI
  leadgen run [flags]    Run a headless discovery run
  leadgen batch [flags]  Run sequential discovery runs over several regions
  leadgen export [flags] Export a .db to CSV
  leadgen regions        List supported region codes
  leadgen version        Show version

Run 'leadgen run --help' or 'leadgen batch --help' for flags.
`)
}
