package run

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

func stubCatalog(cellsByRegion map[string][]model.Cell) CatalogFunc {
	return func(region string, mode model.Mode, subdivisions []string) ([]model.Cell, error) {
		cells, ok := cellsByRegion[region]
		if !ok {
			return nil, errors.New("unknown region " + region)
		}
		return cells, nil
	}
}

func stubSinks(sink ResultSink) SinkFactory {
	return func(r *Run) ([]ResultSink, string, error) {
		if sink == nil {
			return nil, "", nil
		}
		return []ResultSink{sink}, "mem.csv", nil
	}
}

func waitTerminal(t *testing.T, m *Manager, runID string) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		s, ok := m.Status(runID)
		if !ok {
			return false
		}
		st = s
		return s.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return st
}

func TestManagerStartValidation(t *testing.T) {
	m := NewManager(newStubProvider(), stubCatalog(nil), stubSinks(nil), nil, nil)

	tests := []struct {
		name   string
		params model.RunParams
	}{
		{"missing term", model.RunParams{Region: "de", Budget: 10}},
		{"missing region", model.RunParams{Query: "dentist", Budget: 10}},
		{"zero budget", model.RunParams{Query: "dentist", Region: "de"}},
		{"negative budget", model.RunParams{Query: "dentist", Region: "de", Budget: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Start(tt.params)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, m.List(), "failed starts leave no run behind")
}

func TestManagerStartCatalogErrorIsSynchronous(t *testing.T) {
	m := NewManager(newStubProvider(), stubCatalog(map[string][]model.Cell{}), stubSinks(nil), nil, nil)

	_, err := m.Start(paramsFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown region")
	assert.Empty(t, m.List())
}

func TestManagerRunToCompletion(t *testing.T) {
	provider := newStubProvider()
	provider.set("city-00", 0, leadsFixture("a", 7), -1)
	sink := newMemSink()
	m := NewManager(provider,
		stubCatalog(map[string][]model.Cell{"de": cellsFixture(1)}),
		stubSinks(sink), &memHistory{}, nil)

	runID, err := m.Start(paramsFixture())
	require.NoError(t, err)

	st := waitTerminal(t, m, runID)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 7, st.AcceptedCount)
	assert.Equal(t, "mem.csv", st.ExportPath)
	assert.Len(t, sink.leads, 7)
}

func TestManagerDefaults(t *testing.T) {
	m := NewManager(newStubProvider(),
		stubCatalog(map[string][]model.Cell{"de": cellsFixture(1)}),
		stubSinks(nil), nil, nil)

	params := model.RunParams{Query: "dentist", Region: "de", Budget: 10}
	runID, err := m.Start(params)
	require.NoError(t, err)

	r, ok := m.Run(runID)
	require.True(t, ok)
	assert.Equal(t, model.ModeBalanced, r.Params.Mode)
	assert.Equal(t, model.PrecisionBroad, r.Params.Precision)
	waitTerminal(t, m, runID)
}

func TestManagerCancel(t *testing.T) {
	provider := newStubProvider()
	provider.latency = 100 * time.Millisecond
	for i := 0; i < 10; i++ {
		provider.set(cellsFixture(10)[i].ID, 0, leadsFixture("x", 3), -1)
	}
	m := NewManager(provider,
		stubCatalog(map[string][]model.Cell{"de": cellsFixture(10)}),
		stubSinks(nil), nil, nil)

	assert.False(t, m.Cancel("no-such-run"))

	runID, err := m.Start(paramsFixture())
	require.NoError(t, err)
	assert.True(t, m.Cancel(runID))

	st := waitTerminal(t, m, runID)
	assert.Equal(t, StateStopped, st.State)
	assert.False(t, m.Cancel(runID), "terminal runs cannot be cancelled")
}

func TestManagerList(t *testing.T) {
	provider := newStubProvider()
	m := NewManager(provider,
		stubCatalog(map[string][]model.Cell{"de": cellsFixture(1)}),
		stubSinks(nil), nil, nil)

	id1, err := m.Start(paramsFixture())
	require.NoError(t, err)
	id2, err := m.Start(paramsFixture())
	require.NoError(t, err)

	waitTerminal(t, m, id1)
	waitTerminal(t, m, id2)

	list := m.List()
	require.Len(t, list, 2)
	ids := map[string]bool{list[0].RunID: true, list[1].RunID: true}
	assert.True(t, ids[id1])
	assert.True(t, ids[id2])
}
