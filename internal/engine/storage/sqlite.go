package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

// Store persists accepted leads and the append-only run history in a single
// sqlite database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// Optimize for write throughput
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		place_ref TEXT NOT NULL,
		name TEXT NOT NULL,
		address TEXT,
		phone TEXT,
		website TEXT,
		rating REAL,
		review_count INTEGER,
		category TEXT,
		categories TEXT,
		lat REAL,
		lng REAL,
		open_hours TEXT,
		price_range TEXT,
		description TEXT,
		cell TEXT,
		query TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, place_ref)
	);
	CREATE INDEX IF NOT EXISTS idx_leads_run ON leads(run_id);
	CREATE INDEX IF NOT EXISTS idx_leads_rating ON leads(rating);
	CREATE TABLE IF NOT EXISTS history (
		run_id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		region TEXT NOT NULL,
		mode TEXT,
		budget INTEGER,
		accepted INTEGER,
		credits INTEGER,
		export_path TEXT,
		final_state TEXT,
		started_at DATETIME,
		finished_at DATETIME
	);
	`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Append stores one accepted lead. Implements run.ResultSink.
func (s *Store) Append(runID string, l model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO leads
		(run_id, place_ref, name, address, phone, website, rating, review_count,
		 category, categories, lat, lng, open_hours, price_range, description, cell, query)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, l.PlaceRef, l.Name, l.Address, l.Phone, l.Website, l.Rating, l.ReviewCount,
		l.Category, l.Categories, l.Lat, l.Lng, l.OpenHours, l.PriceRange, l.Description, l.Cell, l.Query,
	)
	if err != nil {
		return fmt.Errorf("inserting lead: %w", err)
	}
	return nil
}

// WriteEntry appends a run summary to the history table. Implements
// run.HistoryWriter. Entries are never mutated after write.
func (s *Store) WriteEntry(e model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO history
		(run_id, query, region, mode, budget, accepted, credits, export_path, final_state, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.RunID, e.Query, e.Region, e.Mode, e.Budget, e.Accepted, e.Credits,
		e.ExportPath, e.FinalState, e.StartedAt.UTC(), e.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

// History returns run summaries, most recent first.
func (s *Store) History() ([]model.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT run_id, query, region, mode, budget, accepted, credits,
		       export_path, final_state, started_at, finished_at
		FROM history ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var started, finished time.Time
		if err := rows.Scan(&e.RunID, &e.Query, &e.Region, &e.Mode, &e.Budget, &e.Accepted,
			&e.Credits, &e.ExportPath, &e.FinalState, &started, &finished); err != nil {
			continue
		}
		e.StartedAt = started
		e.FinishedAt = finished
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LeadsByRun returns a run's accepted leads in discovery order.
func (s *Store) LeadsByRun(runID string) ([]model.Lead, error) {
	rows, err := s.db.Query(`
		SELECT place_ref, name, address, phone, website, rating, review_count,
		       category, categories, lat, lng, open_hours, price_range, description, cell, query
		FROM leads WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.PlaceRef, &l.Name, &l.Address, &l.Phone, &l.Website, &l.Rating,
			&l.ReviewCount, &l.Category, &l.Categories, &l.Lat, &l.Lng,
			&l.OpenHours, &l.PriceRange, &l.Description, &l.Cell, &l.Query); err != nil {
			continue
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// Leads returns every stored lead, ordered by insertion.
func (s *Store) Leads() ([]model.Lead, error) {
	rows, err := s.db.Query(`
		SELECT place_ref, name, address, phone, website, rating, review_count,
		       category, categories, lat, lng, open_hours, price_range, description, cell, query
		FROM leads ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.PlaceRef, &l.Name, &l.Address, &l.Phone, &l.Website, &l.Rating,
			&l.ReviewCount, &l.Category, &l.Categories, &l.Lat, &l.Lng,
			&l.OpenHours, &l.PriceRange, &l.Description, &l.Cell, &l.Query); err != nil {
			continue
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// Count returns the total number of stored leads.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM leads").Scan(&count)
	return count, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
