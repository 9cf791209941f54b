package run

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

// BatchParams configures a batch run: one independent sub-run per region and
// search term, executed strictly sequentially.
type BatchParams struct {
	Regions       []string
	DefaultQuery  string
	TermsByRegion map[string][]string // per-region search terms, falls back to DefaultQuery
	Mode          model.Mode
	Subdivisions  []string
	Budget        int // per sub-run
	Precision     model.Precision
	Thresholds    model.Thresholds
	OutputDir     string
}

// Batch tracks the sub-runs of one batch invocation.
type Batch struct {
	ID     string
	cancel context.CancelFunc

	mu     sync.Mutex
	runIDs []string
	done   bool
}

// BatchStatus is a point-in-time snapshot of a batch.
type BatchStatus struct {
	BatchID string
	RunIDs  []string
	Done    bool
}

func (b *Batch) addRun(id string) {
	b.mu.Lock()
	b.runIDs = append(b.runIDs, id)
	b.mu.Unlock()
}

func (b *Batch) status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, len(b.runIDs))
	copy(ids, b.runIDs)
	return BatchStatus{BatchID: b.ID, RunIDs: ids, Done: b.done}
}

// StartBatch launches the sequential batch worker. Sub-runs are created as
// the batch reaches them; a region whose catalog fails produces a Failed
// sub-run and the batch moves on.
func (m *Manager) StartBatch(params BatchParams) (string, error) {
	if len(params.Regions) == 0 {
		return "", fmt.Errorf("batch needs at least one region")
	}
	if params.DefaultQuery == "" && len(params.TermsByRegion) == 0 {
		return "", fmt.Errorf("batch needs a search term")
	}
	if params.Budget <= 0 {
		return "", fmt.Errorf("lead budget must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Batch{ID: uuid.NewString(), cancel: cancel}

	m.mu.Lock()
	m.batches[b.ID] = b
	m.mu.Unlock()

	go m.runBatch(ctx, b, params)
	return b.ID, nil
}

// BatchStatus returns a snapshot of a batch.
func (m *Manager) BatchStatus(batchID string) (BatchStatus, bool) {
	m.mu.Lock()
	b, ok := m.batches[batchID]
	m.mu.Unlock()
	if !ok {
		return BatchStatus{}, false
	}
	return b.status(), true
}

// CancelBatch stops the active sub-run at its next checkpoint and prevents
// subsequent sub-runs from starting.
func (m *Manager) CancelBatch(batchID string) bool {
	m.mu.Lock()
	b, ok := m.batches[batchID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	b.cancel()
	return true
}

// runBatch executes sub-runs one after another, never interleaved. Each
// sub-run gets its own export sinks and history entry.
func (m *Manager) runBatch(ctx context.Context, b *Batch, params BatchParams) {
	defer func() {
		b.mu.Lock()
		b.done = true
		b.mu.Unlock()
	}()

	for _, region := range params.Regions {
		if ctx.Err() != nil {
			return
		}
		terms := params.TermsByRegion[region]
		if len(terms) == 0 {
			terms = []string{params.DefaultQuery}
		}
		for _, term := range terms {
			if ctx.Err() != nil {
				return
			}
			m.runBatchLeg(ctx, b, region, term, params)
		}
	}
}

func (m *Manager) runBatchLeg(ctx context.Context, b *Batch, region, term string, params BatchParams) {
	runParams := model.RunParams{
		Query:        term,
		Region:       region,
		Mode:         params.Mode,
		Subdivisions: params.Subdivisions,
		Budget:       params.Budget,
		Precision:    params.Precision,
		Thresholds:   params.Thresholds,
		OutputDir:    params.OutputDir,
	}
	if err := normalize(&runParams); err != nil {
		if m.logger != nil {
			m.logger.Printf("BATCH_SKIP batch=%s region=%s err=%v", b.ID, region, err)
		}
		return
	}

	legCtx, legCancel := context.WithCancel(ctx)
	defer legCancel()

	cells, err := m.buildCatalog(region, runParams.Mode, runParams.Subdivisions)
	if err != nil {
		// Config failure before any cell is processed: the sub-run is the
		// one place Failed is reachable.
		r := newRun(uuid.NewString(), runParams, nil, legCancel)
		r.recordError(err.Error())
		b.addRun(r.ID)
		m.register(r)
		m.orchestrator(nil).finish(r, StateFailed)
		return
	}

	r := newRun(uuid.NewString(), runParams, cells, legCancel)
	sinks, exportPath, err := m.newSinks(r)
	if err != nil {
		r.recordError(err.Error())
		b.addRun(r.ID)
		m.register(r)
		m.orchestrator(nil).finish(r, StateFailed)
		return
	}
	r.setExportPath(exportPath)

	b.addRun(r.ID)
	m.register(r)

	// Synchronous: sub-runs never interleave.
	m.orchestrator(sinks).execute(legCtx, r)
}
