package views

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Toagan/leadgen-scraper/internal/tui/styles"
)

type RecentEntry struct {
	Path    string
	SavedAt time.Time
}

// exportInfo is what we could learn about an export file on disk.
type exportInfo struct {
	missing bool
	rows    int
	size    int64
}

type RecentModel struct {
	entries []RecentEntry
	info    []exportInfo
	cursor  int
}

func NewRecentModel(entries []RecentEntry) RecentModel {
	info := make([]exportInfo, len(entries))
	for i, e := range entries {
		info[i] = inspectExport(e.Path)
	}
	return RecentModel{entries: entries, info: info}
}

// inspectExport stats the file and counts its data rows. A vanished file is
// reported, not dropped, so the user learns it moved.
func inspectExport(path string) exportInfo {
	fi, err := os.Stat(path)
	if err != nil {
		return exportInfo{missing: true}
	}
	out := exportInfo{size: fi.Size()}

	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out.rows++
	}
	if out.rows > 0 {
		out.rows-- // header
	}
	return out
}

func (m RecentModel) Init() tea.Cmd {
	return nil
}

func (m RecentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
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

func (m RecentModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Recent Exports"))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(styles.Hint.Render("No recent exports"))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("esc back"))
		return styles.Border.Render(b.String())
	}

	for i, entry := range m.entries {
		cursor := "  "
		style := styles.InactiveItem
		if i == m.cursor {
			cursor = "> "
			style = styles.ActiveItem
		}

		info := m.info[i]
		name := filepath.Base(entry.Path)

		nameStr := style.Render(name)
		detail := fmt.Sprintf("  %d leads · %s · %s",
			info.rows, humanSize(info.size), timeAgo(entry.SavedAt))
		if info.missing {
			nameStr = lipgloss.NewStyle().Foreground(styles.Error).Strikethrough(true).Render(name)
			detail = "  file missing · " + filepath.Dir(entry.Path)
		}

		detailStr := lipgloss.NewStyle().Foreground(styles.Muted).Render(detail)
		b.WriteString(fmt.Sprintf("%s%s\n%s\n", cursor, nameStr, detailStr))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("↑↓ navigate • esc back"))

	return styles.Border.Render(b.String())
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
