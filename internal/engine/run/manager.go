package run

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

// CatalogFunc builds the ordered cell catalog for a region. Config errors
// surface synchronously from Start, before any run state exists.
type CatalogFunc func(region string, mode model.Mode, subdivisions []string) ([]model.Cell, error)

// SinkFactory opens the per-run result sinks and returns them with the
// run's export location. Concurrent runs must not share an export target, so
// sinks are created per run, never shared.
type SinkFactory func(r *Run) (sinks []ResultSink, exportPath string, err error)

// Manager is the inbound control surface: it registers runs, launches their
// workers, and answers status and cancellation requests.
type Manager struct {
	provider     PageFetcher
	buildCatalog CatalogFunc
	newSinks     SinkFactory
	history      HistoryWriter
	logger       *log.Logger

	mu      sync.Mutex
	runs    map[string]*Run
	batches map[string]*Batch
}

func NewManager(provider PageFetcher, buildCatalog CatalogFunc, newSinks SinkFactory, history HistoryWriter, logger *log.Logger) *Manager {
	return &Manager{
		provider:     provider,
		buildCatalog: buildCatalog,
		newSinks:     newSinks,
		history:      history,
		logger:       logger,
		runs:         make(map[string]*Run),
		batches:      make(map[string]*Batch),
	}
}

func (m *Manager) orchestrator(sinks []ResultSink) *Orchestrator {
	return &Orchestrator{
		Provider: m.provider,
		Sinks:    sinks,
		History:  m.history,
		Logger:   m.logger,
	}
}

// Start validates the parameters, builds the catalog, registers the run and
// launches its single worker goroutine. Configuration problems are returned
// here and no run is created.
func (m *Manager) Start(params model.RunParams) (string, error) {
	if err := normalize(&params); err != nil {
		return "", err
	}

	cells, err := m.buildCatalog(params.Region, params.Mode, params.Subdivisions)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := newRun(uuid.NewString(), params, cells, cancel)

	sinks, exportPath, err := m.newSinks(r)
	if err != nil {
		cancel()
		return "", fmt.Errorf("opening sinks: %w", err)
	}
	r.setExportPath(exportPath)

	m.register(r)
	go m.orchestrator(sinks).execute(ctx, r)

	return r.ID, nil
}

// Status returns a snapshot of a run.
func (m *Manager) Status(runID string) (Status, bool) {
	m.mu.Lock()
	r, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return r.Status(), true
}

// Run returns the live run handle; its accessors snapshot internally.
func (m *Manager) Run(runID string) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	return r, ok
}

// Cancel requests cancellation of a run. Returns true when the run exists
// and had not yet reached a terminal state. Idempotent.
func (m *Manager) Cancel(runID string) bool {
	m.mu.Lock()
	r, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if r.Status().State.Terminal() {
		return false
	}
	r.Cancel()
	return true
}

// List returns snapshots of all known runs, most recently started first.
func (m *Manager) List() []Status {
	m.mu.Lock()
	statuses := make([]Status, 0, len(m.runs))
	for _, r := range m.runs {
		statuses = append(statuses, r.Status())
	}
	m.mu.Unlock()
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartedAt.After(statuses[j].StartedAt)
	})
	return statuses
}

func (m *Manager) register(r *Run) {
	m.mu.Lock()
	m.runs[r.ID] = r
	m.mu.Unlock()
}

func normalize(p *model.RunParams) error {
	if p.Query == "" {
		return fmt.Errorf("search term is required")
	}
	if p.Region == "" {
		return fmt.Errorf("region is required")
	}
	if p.Budget <= 0 {
		return fmt.Errorf("lead budget must be positive")
	}
	if p.Mode == "" {
		p.Mode = model.ModeBalanced
	}
	if p.Precision == "" {
		p.Precision = model.PrecisionBroad
	}
	return nil
}
