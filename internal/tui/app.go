package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Toagan/leadgen-scraper/internal/tui/views"
)

type viewID int

const (
	viewHome viewID = iota
	viewForm
	viewProgress
	viewHistory
	viewRecent
)

// App is the root bubbletea model.
type App struct {
	currentView viewID
	width       int
	height      int
	home        views.HomeModel
	form        views.FormModel
	progress    views.ProgressModel
	history     views.HistoryModel
	recent      views.RecentModel
}

func NewApp() App {
	return App{
		currentView: viewHome,
		home:        views.NewHomeModel(),
		form:        views.NewFormModel(),
	}
}

func (a App) Init() tea.Cmd {
	return a.home.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && a.currentView != viewProgress {
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case views.NavigateToForm:
		a.currentView = viewForm
		a.form = views.NewFormModel()
		return a, a.form.Init()
	case views.NavigateToHome:
		a.currentView = viewHome
		return a, nil
	case views.StartRunMsg:
		a.currentView = viewProgress
		a.progress = views.NewProgressModel(msg)
		return a, tea.Batch(a.progress.Init(), a.sizeCmd())
	case views.RunFinishedMsg:
		SaveRecent(msg.ExportPath)
		return a, nil
	case views.NavigateToHistory:
		a.currentView = viewHistory
		a.history = views.NewHistoryModel()
		return a, a.history.Init()
	case views.NavigateToRecent:
		a.currentView = viewRecent
		entries := LoadRecent()
		var recentEntries []views.RecentEntry
		for _, e := range entries {
			recentEntries = append(recentEntries, views.RecentEntry{
				Path:    e.Path,
				SavedAt: e.SavedAt,
			})
		}
		a.recent = views.NewRecentModel(recentEntries)
		return a, a.recent.Init()
	}

	var cmd tea.Cmd
	switch a.currentView {
	case viewHome:
		var m tea.Model
		m, cmd = a.home.Update(msg)
		a.home = m.(views.HomeModel)
	case viewForm:
		var m tea.Model
		m, cmd = a.form.Update(msg)
		a.form = m.(views.FormModel)
	case viewProgress:
		var m tea.Model
		m, cmd = a.progress.Update(msg)
		a.progress = m.(views.ProgressModel)
	case viewHistory:
		var m tea.Model
		m, cmd = a.history.Update(msg)
		a.history = m.(views.HistoryModel)
	case viewRecent:
		var m tea.Model
		m, cmd = a.recent.Update(msg)
		a.recent = m.(views.RecentModel)
	}

	return a, cmd
}

func (a App) View() string {
	var content string
	switch a.currentView {
	case viewHome:
		content = a.home.View()
	case viewForm:
		content = a.form.View()
	case viewProgress:
		content = a.progress.View()
	case viewHistory:
		content = a.history.View()
	case viewRecent:
		content = a.recent.View()
	}

	return lipgloss.Place(
		a.width, a.height,
		lipgloss.Center, lipgloss.Top,
		content,
	)
}

// sizeCmd sends a WindowSizeMsg so newly created views get the current terminal size.
func (a App) sizeCmd() tea.Cmd {
	w, h := a.width, a.height
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: w, Height: h}
	}
}

// Run starts the TUI.
func Run() error {
	p := tea.NewProgram(NewApp(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
