package views

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Toagan/leadgen-scraper/internal/config"
	"github.com/Toagan/leadgen-scraper/internal/engine/storage"
	"github.com/Toagan/leadgen-scraper/internal/model"
	"github.com/Toagan/leadgen-scraper/internal/tui/styles"
)

type HistoryModel struct {
	entries []model.HistoryEntry
	cursor  int
	loaded  bool
	errMsg  string
}

type historyLoadedMsg struct {
	entries []model.HistoryEntry
	err     error
}

func NewHistoryModel() HistoryModel {
	return HistoryModel{}
}

// Init loads run summaries from the default database, if it exists.
func (m HistoryModel) Init() tea.Cmd {
	return func() tea.Msg {
		cfg, err := config.Load("")
		if err != nil {
			return historyLoadedMsg{err: err}
		}
		dbPath := filepath.Join(cfg.OutputDir, "leadgen.db")
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return historyLoadedMsg{}
		}
		store, err := storage.NewStore(dbPath)
		if err != nil {
			return historyLoadedMsg{err: err}
		}
		defer store.Close()
		entries, err := store.History()
		return historyLoadedMsg{entries: entries, err: err}
	}
}

func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		m.loaded = true
		m.entries = msg.entries
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case "esc", "enter":
			return m, func() tea.Msg { return NavigateToHome{} }
		}
	}
	return m, nil
}

func (m HistoryModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Run History"))
	b.WriteString("\n\n")

	switch {
	case m.errMsg != "":
		b.WriteString(styles.ErrorText.Render(m.errMsg))
	case !m.loaded:
		b.WriteString(styles.Hint.Render("loading..."))
	case len(m.entries) == 0:
		b.WriteString(styles.Hint.Render("No runs yet"))
	default:
		for i, e := range m.entries {
			cursor := "  "
			style := styles.InactiveItem
			if i == m.cursor {
				cursor = "> "
				style = styles.ActiveItem
			}

			head := style.Render(fmt.Sprintf("%q in %s", e.Query, e.Region))
			state := stateStyle(e.FinalState).Render(e.FinalState)
			detail := lipgloss.NewStyle().Foreground(styles.Muted).Render(
				fmt.Sprintf("  %s · %d/%d leads · %d credits · %s",
					e.Mode, e.Accepted, e.Budget, e.Credits,
					e.FinishedAt.Local().Format("2006-01-02 15:04")))

			b.WriteString(fmt.Sprintf("%s%s %s\n%s\n", cursor, head, state, detail))
		}
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("↑↓ navigate • esc back"))

	return styles.Border.Render(b.String())
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "completed":
		return lipgloss.NewStyle().Foreground(styles.Success)
	case "failed":
		return lipgloss.NewStyle().Foreground(styles.Error)
	default:
		return lipgloss.NewStyle().Foreground(styles.Warning)
	}
}
