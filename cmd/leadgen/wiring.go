package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/Toagan/leadgen-scraper/internal/config"
	"github.com/Toagan/leadgen-scraper/internal/engine/catalog"
	"github.com/Toagan/leadgen-scraper/internal/engine/export"
	"github.com/Toagan/leadgen-scraper/internal/engine/run"
	"github.com/Toagan/leadgen-scraper/internal/engine/serper"
	"github.com/Toagan/leadgen-scraper/internal/engine/storage"
	"github.com/Toagan/leadgen-scraper/internal/model"
)

const (
	dbName  = "leadgen.db"
	logName = "leadgen.log"
)

// engine bundles the shared pieces behind the run and batch subcommands: one
// store and log per output directory, one provider client, one manager.
type engine struct {
	cfg     *config.Config
	store   *storage.Store
	logger  *log.Logger
	logPath string
	dbPath  string
	mgr     *run.Manager

	mu      sync.Mutex
	closers []io.Closer
}

func openEngine(configPath, outputDir string) (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	key, err := config.APIKey()
	if err != nil {
		return nil, err
	}

	e := &engine{
		cfg:     cfg,
		dbPath:  filepath.Join(cfg.OutputDir, dbName),
		logPath: filepath.Join(cfg.OutputDir, logName),
	}

	e.store, err = storage.NewStore(e.dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	logFile, err := os.OpenFile(e.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		e.store.Close()
		return nil, fmt.Errorf("opening log: %w", err)
	}
	e.closers = append(e.closers, logFile)
	e.logger = log.New(logFile, "", log.LstdFlags)

	client := serper.NewClient(key, "", serper.WithRate(cfg.RateLimit))
	e.mgr = run.NewManager(client, e.catalogFunc(), e.sinkFactory(), e.store, e.logger)

	return e, nil
}

// catalogFunc honors per-region city table overrides from the config file.
func (e *engine) catalogFunc() run.CatalogFunc {
	return func(region string, mode model.Mode, subdivisions []string) ([]model.Cell, error) {
		if rc, ok := e.cfg.Regions[region]; ok && rc.CityFile != "" {
			return catalog.BuildFromFile(rc.CityFile, region, mode, subdivisions)
		}
		return catalog.Build(region, mode, subdivisions)
	}
}

// sinkFactory gives each run its own CSV export next to the shared database.
func (e *engine) sinkFactory() run.SinkFactory {
	return func(r *run.Run) ([]run.ResultSink, string, error) {
		dir := r.Params.OutputDir
		if dir == "" {
			dir = e.cfg.OutputDir
		}
		csvSink, err := export.NewCSVSink(dir, export.Filename(r.Params.Query, r.Params.Region))
		if err != nil {
			return nil, "", err
		}
		e.mu.Lock()
		e.closers = append(e.closers, csvSink)
		e.mu.Unlock()
		return []run.ResultSink{e.store, csvSink}, csvSink.Path(), nil
	}
}

func (e *engine) Close() {
	e.mu.Lock()
	closers := e.closers
	e.closers = nil
	e.mu.Unlock()
	for _, c := range closers {
		c.Close()
	}
	e.store.Close()
}
