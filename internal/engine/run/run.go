package run

import (
	"context"
	"sync"
	"time"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

// PageFetcher is the provider call boundary (the Serper client in
// production, stubs in tests).
type PageFetcher interface {
	FetchPage(ctx context.Context, cell model.Cell, query string, offset int) (*model.ProviderPage, error)
}

// ResultSink receives each accepted lead as it is discovered. Sink failures
// are recorded on the run but never change its state.
type ResultSink interface {
	Append(runID string, lead model.Lead) error
}

// HistoryWriter persists the immutable run summary once a terminal state is
// reached.
type HistoryWriter interface {
	WriteEntry(entry model.HistoryEntry) error
}

// Run is one execution of the discovery engine. The worker goroutine is the
// only writer; everything readers see goes through Status(), which snapshots
// under the mutex.
type Run struct {
	ID        string
	Params    model.RunParams
	collector *Collector
	cancel    context.CancelFunc

	mu          sync.Mutex
	state       State
	cells       []model.Cell
	cellIndex   int
	credits     int
	errs        []string
	exportPath  string
	startedAt   time.Time
	finishedAt  time.Time
}

// Status is a point-in-time snapshot of a run.
type Status struct {
	RunID         string
	State         State
	Query         string
	Region        string
	AcceptedCount int
	SeenCount     int
	CellIndex     int
	TotalCells    int
	Credits       int
	Errors        []string
	ExportPath    string
	StartedAt     time.Time
	FinishedAt    time.Time
}

func newRun(id string, params model.RunParams, cells []model.Cell, cancel context.CancelFunc) *Run {
	return &Run{
		ID:        id,
		Params:    params,
		collector: NewCollector(),
		cancel:    cancel,
		state:     StatePending,
		cells:     cells,
	}
}

// Status returns a consistent snapshot; the error slice is copied so callers
// never alias the live list.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]string, len(r.errs))
	copy(errs, r.errs)
	return Status{
		RunID:         r.ID,
		State:         r.state,
		Query:         r.Params.Query,
		Region:        r.Params.Region,
		AcceptedCount: r.collector.AcceptedCount(),
		SeenCount:     r.collector.SeenCount(),
		CellIndex:     r.cellIndex,
		TotalCells:    len(r.cells),
		Credits:       r.credits,
		Errors:        errs,
		ExportPath:    r.exportPath,
		StartedAt:     r.startedAt,
		FinishedAt:    r.finishedAt,
	}
}

// Accepted returns a copy of the accepted leads.
func (r *Run) Accepted() []model.Lead {
	return r.collector.Accepted()
}

// Cancel requests cooperative cancellation. Safe from any goroutine; the
// worker observes it at the next cell or page boundary.
func (r *Run) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Run) transition(to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !canTransition(r.state, to) {
		return false
	}
	r.state = to
	switch to {
	case StateRunning:
		r.startedAt = time.Now()
	case StateCompleted, StateStopped, StateFailed:
		r.finishedAt = time.Now()
	}
	return true
}

func (r *Run) setCellIndex(i int) {
	r.mu.Lock()
	r.cellIndex = i
	r.mu.Unlock()
}

func (r *Run) addCredits(n int) {
	r.mu.Lock()
	r.credits += n
	r.mu.Unlock()
}

func (r *Run) recordError(msg string) {
	r.mu.Lock()
	r.errs = append(r.errs, msg)
	r.mu.Unlock()
}

func (r *Run) setExportPath(p string) {
	r.mu.Lock()
	r.exportPath = p
	r.mu.Unlock()
}

func (r *Run) snapshotCells() []model.Cell {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cells
}
