package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

func leadFixture() model.Lead {
	return model.Lead{
		PlaceRef:    "cid-1",
		Name:        "Praxis Dr. Weber",
		Address:     "Hauptstraße 1, Berlin",
		Phone:       "+49 30 1234567",
		Website:     "https://example.de",
		Rating:      4.6,
		ReviewCount: 120,
		Category:    "Dentist",
		Categories:  "Dentist, Doctor",
		Lat:         52.52,
		Lng:         13.405,
		Cell:        "Berlin",
		Query:       "dentist in Berlin",
	}
}

func TestCSVSinkAppendsIncrementally(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir, "out.csv")
	require.NoError(t, err)

	require.NoError(t, sink.Append("r1", leadFixture()))

	// Rows are flushed per append; the file is readable before Close.
	rows := readCSV(t, sink.Path())
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "Praxis Dr. Weber", rows[1][2])
	assert.Equal(t, "4.6", rows[1][6])
	assert.Equal(t, "cid-1", rows[1][13])

	require.NoError(t, sink.Append("r1", leadFixture()))
	require.NoError(t, sink.Close())

	rows = readCSV(t, sink.Path())
	assert.Len(t, rows, 3)
}

func TestNewCSVSinkCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	sink, err := NewCSVSink(dir, "out.csv")
	require.NoError(t, err)
	defer sink.Close()

	_, err = os.Stat(filepath.Join(dir, "out.csv"))
	assert.NoError(t, err)
}

func TestWriteAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "all.csv")
	leads := []model.Lead{leadFixture(), leadFixture()}
	require.NoError(t, WriteAll(path, leads))

	rows := readCSV(t, path)
	assert.Len(t, rows, 3)
}

func TestFilename(t *testing.T) {
	name := Filename("dental clinic & spa", "de")
	assert.True(t, strings.HasPrefix(name, "dental_clinic___spa_de_"))
	assert.True(t, strings.HasSuffix(name, ".csv"))
	assert.NotContains(t, name, " ")
	assert.NotContains(t, name, "&")
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
