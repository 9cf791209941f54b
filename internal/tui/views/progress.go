package views

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Toagan/leadgen-scraper/internal/config"
	"github.com/Toagan/leadgen-scraper/internal/engine/catalog"
	"github.com/Toagan/leadgen-scraper/internal/engine/export"
	"github.com/Toagan/leadgen-scraper/internal/engine/run"
	"github.com/Toagan/leadgen-scraper/internal/engine/serper"
	"github.com/Toagan/leadgen-scraper/internal/engine/storage"
	"github.com/Toagan/leadgen-scraper/internal/model"
	"github.com/Toagan/leadgen-scraper/internal/tui/styles"
)

// runShared holds data shared between the engine goroutines and the TUI.
// Lives behind a pointer so it survives bubbletea's value copies.
type runShared struct {
	mu     sync.Mutex
	mgr    *run.Manager
	runID  string
	closef []func()
}

func (s *runShared) status() (run.Status, bool) {
	s.mu.Lock()
	mgr, id := s.mgr, s.runID
	s.mu.Unlock()
	if mgr == nil {
		return run.Status{}, false
	}
	return mgr.Status(id)
}

func (s *runShared) cancelRun() {
	s.mu.Lock()
	mgr, id := s.mgr, s.runID
	s.mu.Unlock()
	if mgr != nil {
		mgr.Cancel(id)
	}
}

func (s *runShared) close() {
	s.mu.Lock()
	fns := s.closef
	s.closef = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ProgressModel manages the live run view.
type ProgressModel struct {
	params      model.RunParams
	progress    progress.Model
	startTime   time.Time
	started     bool
	done        bool
	confirmQuit bool
	errMsg      string
	final       run.Status
	width       int
	height      int
	shared      *runShared
}

// Messages
type progressTickMsg time.Time

type runStartedMsg struct{}

type runFailedMsg struct {
	Err error
}

func NewProgressModel(msg StartRunMsg) ProgressModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	return ProgressModel{
		params:    msg.Params,
		progress:  p,
		startTime: time.Now(),
		shared:    &runShared{},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.startRun(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

// startRun wires the engine and launches the run worker. Failures before the
// worker starts surface as runFailedMsg.
func (m ProgressModel) startRun() tea.Cmd {
	shared := m.shared
	params := m.params

	return func() tea.Msg {
		cfg, err := config.Load("")
		if err != nil {
			return runFailedMsg{Err: err}
		}
		key, err := config.APIKey()
		if err != nil {
			return runFailedMsg{Err: err}
		}

		if err := os.MkdirAll(params.OutputDir, 0755); err != nil {
			return runFailedMsg{Err: err}
		}

		store, err := storage.NewStore(filepath.Join(params.OutputDir, "leadgen.db"))
		if err != nil {
			return runFailedMsg{Err: err}
		}

		logFile, err := os.OpenFile(filepath.Join(params.OutputDir, "leadgen.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			store.Close()
			return runFailedMsg{Err: err}
		}
		logger := log.New(logFile, "", log.LstdFlags)

		client := serper.NewClient(key, "", serper.WithRate(cfg.RateLimit))

		catalogFn := func(region string, mode model.Mode, subdivisions []string) ([]model.Cell, error) {
			if rc, ok := cfg.Regions[region]; ok && rc.CityFile != "" {
				return catalog.BuildFromFile(rc.CityFile, region, mode, subdivisions)
			}
			return catalog.Build(region, mode, subdivisions)
		}

		sinkFn := func(r *run.Run) ([]run.ResultSink, string, error) {
			csvSink, err := export.NewCSVSink(r.Params.OutputDir, export.Filename(r.Params.Query, r.Params.Region))
			if err != nil {
				return nil, "", err
			}
			shared.mu.Lock()
			shared.closef = append(shared.closef, func() { csvSink.Close() })
			shared.mu.Unlock()
			return []run.ResultSink{store, csvSink}, csvSink.Path(), nil
		}

		mgr := run.NewManager(client, catalogFn, sinkFn, store, logger)

		runID, err := mgr.Start(params)
		if err != nil {
			logFile.Close()
			store.Close()
			return runFailedMsg{Err: err}
		}

		shared.mu.Lock()
		shared.mgr = mgr
		shared.runID = runID
		shared.closef = append(shared.closef,
			func() { logFile.Close() },
			func() { store.Close() },
		)
		shared.mu.Unlock()

		return runStartedMsg{}
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.shared.cancelRun()
			m.shared.close()
			return m, tea.Quit
		case "esc":
			if m.done || m.errMsg != "" {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			if m.confirmQuit {
				// Second esc: cancel and go home; the worker drains in the
				// background and resources close once it lands.
				m.shared.cancelRun()
				shared := m.shared
				go func() {
					for {
						st, ok := shared.status()
						if !ok || st.State.Terminal() {
							shared.close()
							return
						}
						time.Sleep(200 * time.Millisecond)
					}
				}()
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			// First esc: show confirmation
			m.confirmQuit = true
			return m, nil
		case "enter":
			if m.done || m.errMsg != "" {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			if m.confirmQuit {
				m.confirmQuit = false
				return m, nil
			}
		}
		// Any other key cancels the confirmation
		if m.confirmQuit {
			m.confirmQuit = false
		}
	case runStartedMsg:
		m.started = true
		return m, nil
	case runFailedMsg:
		m.errMsg = msg.Err.Error()
		return m, nil
	case progressTickMsg:
		if m.done || m.errMsg != "" {
			return m, nil
		}
		if st, ok := m.shared.status(); ok && st.State.Terminal() {
			m.done = true
			m.final = st
			m.shared.close()
			return m, func() tea.Msg { return RunFinishedMsg{ExportPath: st.ExportPath} }
		}
		return m, tickCmd()
	}

	var cmd tea.Cmd
	var pModel tea.Model
	pModel, cmd = m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

// RunFinishedMsg is emitted once the run lands in a terminal state so the
// root model can record the export.
type RunFinishedMsg struct {
	ExportPath string
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Discovering: %q in %s", m.params.Query, m.params.Region)))
	b.WriteString("\n\n")

	if m.errMsg != "" {
		b.WriteString(styles.ErrorText.Render("Error: " + m.errMsg))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("esc back"))
		return b.String()
	}

	st, _ := m.shared.status()
	if m.done {
		st = m.final
	}

	// Stats
	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(32).
		Render(m.renderStats(st))
	b.WriteString(statsBox)
	b.WriteString("\n\n")

	// Progress bar tracks catalog position
	var pct float64
	if st.TotalCells > 0 {
		pct = float64(st.CellIndex) / float64(st.TotalCells)
	}
	if m.done {
		pct = 1
	}
	b.WriteString(m.progress.ViewAs(pct))
	b.WriteString("\n\n")

	// Status
	switch {
	case m.done:
		b.WriteString(styles.SuccessText.Render(
			fmt.Sprintf("%s: %d leads accepted", m.final.State, m.final.AcceptedCount)))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
			Render("Export: " + m.final.ExportPath))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("enter back to menu"))
	case m.confirmQuit:
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the run and go back"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	case !m.started:
		b.WriteString(styles.StatusBar.Render("starting..."))
	default:
		b.WriteString(styles.StatusBar.Render("esc cancel • ctrl+c quit"))
	}

	return b.String()
}

func (m ProgressModel) renderStats(st run.Status) string {
	var sb strings.Builder
	elapsed := time.Since(m.startTime).Truncate(time.Second)
	if m.done {
		elapsed = m.final.FinishedAt.Sub(m.final.StartedAt).Truncate(time.Second)
	}

	statLabel := lipgloss.NewStyle().Foreground(styles.Muted).Width(12)
	statVal := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)

	row := func(label string, value string) {
		sb.WriteString(statLabel.Render(label))
		sb.WriteString(statVal.Render(value))
		sb.WriteString("\n")
	}

	cell := st.CellIndex
	if st.State == run.StateCompleted {
		cell = st.TotalCells
	}
	row("Cells:", fmt.Sprintf("%d/%d", cell, st.TotalCells))
	row("Seen:", fmt.Sprintf("%d", st.SeenCount))
	row("Accepted:", fmt.Sprintf("%d/%d", st.AcceptedCount, m.params.Budget))
	row("Credits:", fmt.Sprintf("%d", st.Credits))

	errStyle := statVal
	if len(st.Errors) > 0 {
		errStyle = lipgloss.NewStyle().Foreground(styles.Error).Bold(true)
	}
	sb.WriteString(statLabel.Render("Errors:"))
	sb.WriteString(errStyle.Render(fmt.Sprintf("%d", len(st.Errors))))
	sb.WriteString("\n")

	row("Elapsed:", elapsed.String())

	return sb.String()
}
