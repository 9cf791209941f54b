package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Toagan/leadgen-scraper/internal/engine/serper"
	"github.com/Toagan/leadgen-scraper/internal/model"
)

func paramsFixture() model.RunParams {
	return model.RunParams{
		Query:     "dentist",
		Region:    "de",
		Mode:      model.ModeBalanced,
		Budget:    1000,
		Precision: model.PrecisionBroad,
	}
}

func cellsFixture(n int) []model.Cell {
	cells := make([]model.Cell, n)
	for i := range cells {
		cells[i] = model.Cell{
			ID:     fmt.Sprintf("city-%02d", i),
			Name:   fmt.Sprintf("City %d", i),
			Region: "de",
			Weight: 1000 - i,
		}
	}
	return cells
}

func leadsFixture(prefix string, n int) []model.Lead {
	leads := make([]model.Lead, n)
	for i := range leads {
		leads[i] = model.Lead{
			PlaceRef: fmt.Sprintf("%s-%03d", prefix, i),
			Name:     fmt.Sprintf("%s %d", prefix, i),
			Rating:   4.2,
		}
	}
	return leads
}

type pageKey struct {
	cellID string
	offset int
}

// stubProvider serves scripted pages per (cell, offset). Unscripted keys
// return an empty exhausted page.
type stubProvider struct {
	mu      sync.Mutex
	pages   map[pageKey]*model.ProviderPage
	errs    map[pageKey]error
	calls   []pageKey
	latency time.Duration
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		pages: make(map[pageKey]*model.ProviderPage),
		errs:  make(map[pageKey]error),
	}
}

func (s *stubProvider) set(cellID string, offset int, leads []model.Lead, next int) {
	s.pages[pageKey{cellID, offset}] = &model.ProviderPage{Leads: leads, NextOffset: next, Credits: 1}
}

func (s *stubProvider) fail(cellID string, offset int, err error) {
	s.errs[pageKey{cellID, offset}] = err
}

func (s *stubProvider) FetchPage(ctx context.Context, cell model.Cell, query string, offset int) (*model.ProviderPage, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.latency):
		}
	}
	key := pageKey{cell.ID, offset}
	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.mu.Unlock()
	if err := s.errs[key]; err != nil {
		return nil, err
	}
	if p, ok := s.pages[key]; ok {
		return p, nil
	}
	return &model.ProviderPage{NextOffset: -1}, nil
}

func (s *stubProvider) callsFor(cellID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.cellID == cellID {
			n++
		}
	}
	return n
}

type memSink struct {
	mu     sync.Mutex
	leads  []model.Lead
	runIDs map[string]bool
	err    error
}

func newMemSink() *memSink {
	return &memSink{runIDs: make(map[string]bool)}
}

func (s *memSink) Append(runID string, l model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.leads = append(s.leads, l)
	s.runIDs[runID] = true
	return nil
}

type memHistory struct {
	mu      sync.Mutex
	entries []model.HistoryEntry
}

func (h *memHistory) WriteEntry(e model.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func TestRunCompletesWhenCatalogExhausted(t *testing.T) {
	provider := newStubProvider()
	provider.set("city-00", 0, leadsFixture("a", 5), -1)
	provider.set("city-01", 0, leadsFixture("b", 3), -1)

	sink := newMemSink()
	r := newRun("r1", paramsFixture(), cellsFixture(2), nil)
	o := &Orchestrator{Provider: provider, Sinks: []ResultSink{sink}}

	o.execute(context.Background(), r)

	st := r.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 8, st.AcceptedCount)
	assert.Equal(t, 8, st.SeenCount)
	assert.Equal(t, 1, provider.callsFor("city-00"))
	assert.Equal(t, 1, provider.callsFor("city-01"))
	assert.Len(t, sink.leads, 8)
	assert.True(t, sink.runIDs["r1"])
}

func TestPaginationFollowsCursor(t *testing.T) {
	provider := newStubProvider()
	provider.set("city-00", 0, leadsFixture("p0", 20), 20)
	provider.set("city-00", 20, leadsFixture("p1", 5), -1)

	r := newRun("r1", paramsFixture(), cellsFixture(1), nil)
	o := &Orchestrator{Provider: provider}

	o.execute(context.Background(), r)

	st := r.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 25, st.AcceptedCount)
	assert.Equal(t, 2, provider.callsFor("city-00"), "short page ends the cursor chain")
}

func TestNoNewIdentifiersStopsCell(t *testing.T) {
	dupes := leadsFixture("shared", 20)
	provider := newStubProvider()
	provider.set("city-00", 0, dupes, -1)
	// Second cell serves only already-seen listings and claims more pages.
	provider.set("city-01", 0, dupes, 20)
	provider.set("city-01", 20, leadsFixture("never", 20), -1)

	r := newRun("r1", paramsFixture(), cellsFixture(2), nil)
	o := &Orchestrator{Provider: provider}

	o.execute(context.Background(), r)

	st := r.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 20, st.AcceptedCount)
	assert.Equal(t, 1, provider.callsFor("city-01"), "a page with no new identifiers abandons the cell")
}

func TestThirdPageWithoutNewIdentifiersEndsCell(t *testing.T) {
	provider := newStubProvider()
	provider.set("city-00", 0, leadsFixture("p0", 20), 20)
	provider.set("city-00", 20, leadsFixture("p1", 20), 40)
	// Page 3 re-serves page 1 and still advertises a next cursor.
	provider.set("city-00", 40, leadsFixture("p0", 20), 60)
	provider.set("city-00", 60, leadsFixture("p3", 20), -1)

	r := newRun("r1", paramsFixture(), cellsFixture(1), nil)
	o := &Orchestrator{Provider: provider}

	o.execute(context.Background(), r)

	assert.Equal(t, 3, provider.callsFor("city-00"), "exactly three calls, never a fourth")
	assert.Equal(t, 40, r.Status().AcceptedCount)
}

func TestBudgetBoundsAcceptedLeads(t *testing.T) {
	provider := newStubProvider()
	provider.set("city-00", 0, leadsFixture("p0", 20), 20)
	provider.set("city-00", 20, leadsFixture("p1", 20), 40)
	provider.set("city-01", 0, leadsFixture("p2", 20), -1)

	params := paramsFixture()
	params.Budget = 25
	r := newRun("r1", params, cellsFixture(2), nil)
	o := &Orchestrator{Provider: provider}

	o.execute(context.Background(), r)

	st := r.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 25, st.AcceptedCount, "excess listings on the final page are discarded")
	assert.Equal(t, 0, provider.callsFor("city-01"), "budget ends the whole run, not just the cell")
}

func TestQualityRejectedLeadsStaySeen(t *testing.T) {
	page := []model.Lead{
		{PlaceRef: "good", Rating: 4.0, ReviewCount: 12},
		{PlaceRef: "bad", Rating: 3.2, ReviewCount: 50},
	}
	provider := newStubProvider()
	provider.set("city-00", 0, page, -1)
	// The rejected listing reappears on the next cell and must not be re-evaluated.
	provider.set("city-01", 0, []model.Lead{{PlaceRef: "bad", Rating: 5.0, ReviewCount: 999}}, -1)

	params := paramsFixture()
	params.Thresholds = model.Thresholds{MinRating: 3.5, MinReviews: 10}
	sink := newMemSink()
	r := newRun("r1", params, cellsFixture(2), nil)
	o := &Orchestrator{Provider: provider, Sinks: []ResultSink{sink}}

	o.execute(context.Background(), r)

	st := r.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 1, st.AcceptedCount)
	assert.Equal(t, 2, st.SeenCount)
	require.Len(t, sink.leads, 1)
	assert.Equal(t, "good", sink.leads[0].PlaceRef)
}

func TestProviderFailureAbandonsCellOnly(t *testing.T) {
	provider := newStubProvider()
	provider.fail("city-00", 0, errors.New("request rejected"))
	provider.set("city-01", 0, leadsFixture("ok", 5), -1)

	r := newRun("r1", paramsFixture(), cellsFixture(2), nil)
	o := &Orchestrator{Provider: provider}

	o.execute(context.Background(), r)

	st := r.Status()
	assert.Equal(t, StateCompleted, st.State, "a failed cell never fails the run")
	assert.Equal(t, 5, st.AcceptedCount)
	require.Len(t, st.Errors, 1)
	assert.Contains(t, st.Errors[0], "city-00")
}

func TestProviderErrorLogClassifiesFailure(t *testing.T) {
	provider := newStubProvider()
	provider.fail("city-00", 0, &serper.ProviderError{Kind: serper.Permanent, StatusCode: 403, Err: errors.New("request rejected")})
	provider.fail("city-01", 0, &serper.ProviderError{Kind: serper.Transient, Err: errors.New("provider unavailable")})

	var buf bytes.Buffer
	r := newRun("r1", paramsFixture(), cellsFixture(2), nil)
	o := &Orchestrator{Provider: provider, Logger: log.New(&buf, "", 0)}

	o.execute(context.Background(), r)

	logged := buf.String()
	assert.Contains(t, logged, "cell=city-00 offset=0 permanent=true")
	assert.Contains(t, logged, "cell=city-01 offset=0 permanent=false")
}

func TestSinkFailureIsRecordedNotFatal(t *testing.T) {
	provider := newStubProvider()
	provider.set("city-00", 0, leadsFixture("a", 3), -1)

	sink := newMemSink()
	sink.err = errors.New("disk full")
	r := newRun("r1", paramsFixture(), cellsFixture(1), nil)
	o := &Orchestrator{Provider: provider, Sinks: []ResultSink{sink}}

	o.execute(context.Background(), r)

	st := r.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 3, st.AcceptedCount, "accepted counting is independent of sink health")
	assert.Len(t, st.Errors, 3)
}

func TestCancellationStopsAtBoundary(t *testing.T) {
	provider := newStubProvider()
	provider.latency = 100 * time.Millisecond
	for i := 0; i < 10; i++ {
		provider.set(fmt.Sprintf("city-%02d", i), 0, leadsFixture(fmt.Sprintf("c%d", i), 5), -1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := newRun("r1", paramsFixture(), cellsFixture(10), cancel)
	o := &Orchestrator{Provider: provider}

	// Cancel while the third cell's fetch is in flight.
	time.AfterFunc(250*time.Millisecond, r.Cancel)
	o.execute(ctx, r)

	st := r.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.LessOrEqual(t, st.CellIndex, 3, "the stop lands on the next boundary, not mid-cell")
	assert.Less(t, st.AcceptedCount, 50)
	assert.Greater(t, st.AcceptedCount, 0, "results gathered before the stop are kept")
	assert.Empty(t, st.Errors, "a user-initiated stop is not a provider fault")
}

func TestHistoryWrittenOnFinish(t *testing.T) {
	provider := newStubProvider()
	provider.set("city-00", 0, leadsFixture("a", 4), -1)

	history := &memHistory{}
	r := newRun("r1", paramsFixture(), cellsFixture(1), nil)
	r.setExportPath("/tmp/out.csv")
	o := &Orchestrator{Provider: provider, History: history}

	o.execute(context.Background(), r)

	require.Len(t, history.entries, 1)
	e := history.entries[0]
	assert.Equal(t, "r1", e.RunID)
	assert.Equal(t, "dentist", e.Query)
	assert.Equal(t, "completed", e.FinalState)
	assert.Equal(t, 4, e.Accepted)
	assert.Equal(t, "/tmp/out.csv", e.ExportPath)
	assert.False(t, e.FinishedAt.IsZero())
}

func TestBuildQuery(t *testing.T) {
	city := model.Cell{Name: "Berlin"}
	grid := model.Cell{Name: "grid 3/7", Grid: true}

	p := paramsFixture()
	assert.Equal(t, "dentist in Berlin", buildQuery(p, city))
	assert.Equal(t, "dentist", buildQuery(p, grid))

	p.Precision = model.PrecisionLiteral
	assert.Equal(t, `"dentist" in Berlin`, buildQuery(p, city))
	assert.Equal(t, `"dentist"`, buildQuery(p, grid))
}
