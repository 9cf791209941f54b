package views

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Toagan/leadgen-scraper/internal/tui/styles"
)

type menuItem struct {
	key   string
	label string
	desc  string
}

type HomeModel struct {
	items  []menuItem
	cursor int
}

func NewHomeModel() HomeModel {
	return HomeModel{
		items: []menuItem{
			{key: "n", label: "New Run", desc: "Start a new discovery run"},
			{key: "h", label: "Run History", desc: "Browse finished runs"},
			{key: "r", label: "Recent Exports", desc: "View recent CSV exports"},
			{key: "q", label: "Quit", desc: "Exit leadgen"},
		},
	}
}

func (m HomeModel) Init() tea.Cmd {
	return nil
}

func (m HomeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "enter":
			return m, m.handleSelect()
		case "n":
			m.cursor = 0
			return m, m.handleSelect()
		case "h":
			m.cursor = 1
			return m, m.handleSelect()
		case "r":
			m.cursor = 2
			return m, m.handleSelect()
		case "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m HomeModel) handleSelect() tea.Cmd {
	switch m.cursor {
	case 0: // New Run
		return func() tea.Msg {
			return NavigateToForm{}
		}
	case 1: // History
		return func() tea.Msg {
			return NavigateToHistory{}
		}
	case 2: // Recent
		return func() tea.Msg {
			return NavigateToRecent{}
		}
	case 3: // Quit
		return tea.Quit
	}
	return nil
}

func (m HomeModel) View() string {
	var b strings.Builder

	// Logo
	logo := lipgloss.NewStyle().
		Foreground(styles.Primary).
		Bold(true).
		Render("  leadgen")

	version := lipgloss.NewStyle().
		Foreground(styles.Muted).
		Render(" v0.1.0")

	tagline := lipgloss.NewStyle().
		Foreground(styles.Secondary).
		Italic(true).
		Render("  Business lead discovery")

	b.WriteString(logo + version + "\n")
	b.WriteString(tagline + "\n\n")

	// Menu items
	for i, item := range m.items {
		cursor := "  "
		style := styles.InactiveItem
		if i == m.cursor {
			cursor = "> "
			style = styles.ActiveItem
		}

		key := lipgloss.NewStyle().
			Foreground(styles.Secondary).
			Bold(true).
			Render(fmt.Sprintf("[%s]", item.key))

		label := style.Render(item.label)
		desc := lipgloss.NewStyle().
			Foreground(styles.Muted).
			Render(" - " + item.desc)

		b.WriteString(fmt.Sprintf("%s%s %s%s\n", cursor, key, label, desc))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("↑↓ navigate • enter select • q quit"))

	return styles.Border.Render(b.String())
}

// Navigation messages
type NavigateToForm struct{}
type NavigateToHistory struct{}
type NavigateToRecent struct{}
type NavigateToHome struct{}
