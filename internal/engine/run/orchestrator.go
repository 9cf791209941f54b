package run

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Toagan/leadgen-scraper/internal/engine/serper"
	"github.com/Toagan/leadgen-scraper/internal/model"
)

// errBudgetReached propagates rule 3 of the stopping policy up from the
// pagination loop: it ends the whole run, not just the current cell.
var errBudgetReached = errors.New("lead budget reached")

// Orchestrator owns the cell-iteration loop of a run. One worker goroutine
// per run mutates the run; readers only see snapshots.
type Orchestrator struct {
	Provider PageFetcher
	Sinks    []ResultSink
	History  HistoryWriter
	Logger   *log.Logger
}

// execute drives a run from Running to a terminal state. Cancellation is
// observed between cells and between pages, never mid-flight inside a
// provider call.
func (o *Orchestrator) execute(ctx context.Context, r *Run) {
	if !r.transition(StateRunning) {
		return
	}
	cells := r.snapshotCells()
	o.logf("RUN_START run=%s query=%q region=%s mode=%s cells=%d budget=%d",
		r.ID, r.Params.Query, r.Params.Region, r.Params.Mode, len(cells), r.Params.Budget)

	final := StateCompleted
	for i, cell := range cells {
		if ctx.Err() != nil {
			final = StateStopped
			break
		}
		r.setCellIndex(i)
		o.logf("CELL run=%s cell=%s weight=%d subdivision=%q", r.ID, cell.ID, cell.Weight, cell.Subdivision)

		err := o.paginateCell(ctx, r, cell)
		if errors.Is(err, errBudgetReached) {
			break
		}
		if err != nil {
			// Only cancellation escapes the pagination loop as an error.
			final = StateStopped
			break
		}
	}

	o.finish(r, final)
}

// finish moves the run to its terminal state and persists the history entry.
func (o *Orchestrator) finish(r *Run, final State) {
	if !r.transition(final) {
		return
	}
	st := r.Status()
	o.logf("RUN_DONE run=%s state=%s accepted=%d seen=%d credits=%d errors=%d",
		r.ID, st.State, st.AcceptedCount, st.SeenCount, st.Credits, len(st.Errors))

	if o.History == nil {
		return
	}
	entry := model.HistoryEntry{
		RunID:      r.ID,
		Query:      r.Params.Query,
		Region:     r.Params.Region,
		Mode:       string(r.Params.Mode),
		Budget:     r.Params.Budget,
		Accepted:   st.AcceptedCount,
		Credits:    st.Credits,
		ExportPath: st.ExportPath,
		FinalState: st.State.String(),
		StartedAt:  st.StartedAt,
		FinishedAt: st.FinishedAt,
	}
	if err := o.History.WriteEntry(entry); err != nil {
		r.recordError(fmt.Sprintf("history: %v", err))
		o.logf("EXPORT_ERROR run=%s sink=history err=%v", r.ID, err)
	}
}

// paginateCell chains pagination cursors for one cell until the provider is
// exhausted, a page contributes no new identifiers, the budget is reached, or
// a provider call fails. Provider failures abandon the cell and the run moves
// on; only errBudgetReached and cancellation propagate.
func (o *Orchestrator) paginateCell(ctx context.Context, r *Run, cell model.Cell) error {
	query := buildQuery(r.Params, cell)
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := o.Provider.FetchPage(ctx, cell, query, offset)
		if err != nil {
			// A call aborted by cancellation is not a provider fault; the
			// stop propagates without polluting the run's error list.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.recordError(fmt.Sprintf("cell %s: %v", cell.ID, err))
			o.logf("PROVIDER_ERROR run=%s cell=%s offset=%d permanent=%t err=%v",
				r.ID, cell.ID, offset, serper.IsPermanent(err), err)
			return nil
		}
		r.addCredits(page.Credits)

		newIDs := 0
		for _, lead := range page.Leads {
			if r.collector.AcceptedCount() >= r.Params.Budget {
				// Excess listings on this page are discarded.
				return errBudgetReached
			}
			if !r.collector.Offer(lead) {
				continue
			}
			newIDs++
			if !PassesQuality(lead, r.Params.Thresholds) {
				continue
			}
			r.collector.Accept(lead)
			for _, sink := range o.Sinks {
				if err := sink.Append(r.ID, lead); err != nil {
					r.recordError(fmt.Sprintf("export: %v", err))
					o.logf("EXPORT_ERROR run=%s cell=%s err=%v", r.ID, cell.ID, err)
				}
			}
		}
		o.logf("PAGE run=%s cell=%s offset=%d listings=%d new=%d", r.ID, cell.ID, offset, len(page.Leads), newIDs)

		if r.collector.AcceptedCount() >= r.Params.Budget {
			return errBudgetReached
		}
		if newIDs == 0 {
			// Saturated cell: the provider is looping or done.
			return nil
		}
		if page.NextOffset < 0 {
			return nil
		}
		offset = page.NextOffset
	}
}

// buildQuery applies literal-precision quoting and, for city cells, the
// "<term> in <city>" form the provider expects. Grid cells rely purely on
// the coordinate bias.
func buildQuery(p model.RunParams, cell model.Cell) string {
	q := strings.TrimSpace(p.Query)
	if p.Precision == model.PrecisionLiteral {
		q = `"` + q + `"`
	}
	if !cell.Grid {
		q = q + " in " + cell.Name
	}
	return q
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}
