package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Toagan/leadgen-scraper/internal/engine/catalog"
	"github.com/Toagan/leadgen-scraper/internal/engine/geo"
	"github.com/Toagan/leadgen-scraper/internal/model"
	"github.com/Toagan/leadgen-scraper/internal/tui/styles"
)

var formModes = []model.Mode{
	model.ModeCoarse,
	model.ModeBalanced,
	model.ModeHighCoverage,
	model.ModeMaximal,
}

// Field indices. fieldMode and fieldLiteral are virtual fields, not textinputs.
const (
	fieldTerm = iota
	fieldRegion
	fieldMode
	fieldSubdivisions
	fieldBudget
	fieldMinRating
	fieldMinReviews
	fieldLiteral
	fieldOutput
	fieldCount
)

type FormModel struct {
	inputs  []textinput.Model
	modeIdx int
	literal bool
	focused int
	err     string
	regions []string
}

func NewFormModel() FormModel {
	inputs := make([]textinput.Model, fieldCount)

	inputs[fieldMode] = textinput.New()    // placeholder, never used
	inputs[fieldLiteral] = textinput.New() // placeholder, never used
	inputs[fieldTerm] = newInput("zahnarzt, dental clinic...", "", 50)
	inputs[fieldRegion] = newInput("de", "", 10)
	inputs[fieldSubdivisions] = newInput("optional: Bayern,Hessen...", "", 50)
	inputs[fieldBudget] = newInput("100", "", 10)
	inputs[fieldMinRating] = newInput("0", "", 6)
	inputs[fieldMinReviews] = newInput("0", "", 6)
	inputs[fieldOutput] = newInput("./exports", "", 50)

	m := FormModel{
		inputs:  inputs,
		modeIdx: 1, // balanced
		regions: catalog.Regions(),
	}
	m.inputs[fieldTerm].Focus()
	return m
}

func newInput(placeholder, value string, width int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 100
	if width > 0 {
		ti.Width = width
	}
	if value != "" {
		ti.SetValue(value)
	}
	return ti
}

func (m FormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m FormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }

		case "up":
			m.err = ""
			return m, m.focusPrev()

		case "down", "tab":
			m.err = ""
			return m, m.focusNext()

		case "shift+tab":
			m.err = ""
			return m, m.focusPrev()

		case "enter":
			if cmd := m.submit(); cmd != nil {
				return m, cmd
			}

		case "left":
			if m.focused == fieldMode && m.modeIdx > 0 {
				m.modeIdx--
				return m, nil
			}
			if m.focused == fieldLiteral {
				m.literal = !m.literal
				return m, nil
			}

		case "right":
			if m.focused == fieldMode && m.modeIdx < len(formModes)-1 {
				m.modeIdx++
				return m, nil
			}
			if m.focused == fieldLiteral {
				m.literal = !m.literal
				return m, nil
			}
		}
	}

	// Update focused textinput (skip virtual fields)
	var cmd tea.Cmd
	if !isVirtual(m.focused) && m.focused >= 0 && m.focused < fieldCount {
		m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	}

	return m, cmd
}

func isVirtual(idx int) bool {
	return idx == fieldMode || idx == fieldLiteral
}

func (m *FormModel) focusNext() tea.Cmd {
	if !isVirtual(m.focused) {
		m.inputs[m.focused].Blur()
	}
	m.focused++
	if m.focused >= fieldCount {
		m.focused = fieldTerm
	}
	if isVirtual(m.focused) {
		return nil
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *FormModel) focusPrev() tea.Cmd {
	if !isVirtual(m.focused) {
		m.inputs[m.focused].Blur()
	}
	m.focused--
	if m.focused < 0 {
		m.focused = fieldOutput
	}
	if isVirtual(m.focused) {
		return nil
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *FormModel) submit() tea.Cmd {
	term := strings.TrimSpace(m.inputs[fieldTerm].Value())
	if term == "" {
		m.err = "Search term is required"
		return nil
	}

	region := strings.ToLower(strings.TrimSpace(m.inputs[fieldRegion].Value()))
	if region == "" {
		m.err = "Region is required"
		return nil
	}
	known := false
	for _, r := range m.regions {
		if r == region {
			known = true
			break
		}
	}
	if !known {
		m.err = fmt.Sprintf("Unknown region %q (available: %s)", region, strings.Join(m.regions, ", "))
		return nil
	}

	budget := 100
	if s := strings.TrimSpace(m.inputs[fieldBudget].Value()); s != "" {
		b, err := strconv.Atoi(s)
		if err != nil || b < 1 {
			m.err = "Budget must be a positive number"
			return nil
		}
		budget = b
	}

	var minRating float64
	if s := strings.TrimSpace(m.inputs[fieldMinRating].Value()); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil || r < 0 || r > 5 {
			m.err = "Min rating must be between 0 and 5"
			return nil
		}
		minRating = r
	}

	var minReviews int
	if s := strings.TrimSpace(m.inputs[fieldMinReviews].Value()); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			m.err = "Min reviews must be a number"
			return nil
		}
		minReviews = n
	}

	output := strings.TrimSpace(m.inputs[fieldOutput].Value())
	if output == "" {
		output = "./exports"
	}

	params := model.RunParams{
		Query:      term,
		Region:     region,
		Mode:       formModes[m.modeIdx],
		Budget:     budget,
		Precision:  model.PrecisionBroad,
		Thresholds: model.Thresholds{MinRating: minRating, MinReviews: minReviews},
		OutputDir:  output,
	}
	if m.literal {
		params.Precision = model.PrecisionLiteral
	}
	if s := strings.TrimSpace(m.inputs[fieldSubdivisions].Value()); s != "" {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				params.Subdivisions = append(params.Subdivisions, p)
			}
		}
	}

	return func() tea.Msg {
		return StartRunMsg{Params: params}
	}
}

func (m FormModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("New Run") + "\n\n")

	b.WriteString(m.renderField("Term:", fieldTerm))
	b.WriteString(m.renderField("Region:", fieldRegion))
	if m.focused == fieldRegion {
		b.WriteString(styles.Hint.Render("  available: "+strings.Join(m.regions, ", ")) + "\n")
	}
	b.WriteString(m.renderMode())
	b.WriteString(m.renderField("Subdivisions:", fieldSubdivisions))
	if m.focused == fieldSubdivisions {
		if hint := m.subdivisionHint(); hint != "" {
			b.WriteString(styles.Hint.Render("  "+hint) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.renderField("Budget:", fieldBudget))
	b.WriteString(m.renderField("Min rating:", fieldMinRating))
	b.WriteString(m.renderField("Min reviews:", fieldMinReviews))
	b.WriteString(m.renderLiteral())
	b.WriteString(m.renderField("Output:", fieldOutput))

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render("  " + m.err))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.StatusBar.Render("enter start • tab next • esc back"))

	return styles.Border.Render(b.String())
}

// subdivisionHint previews the known subdivisions of the currently typed region.
func (m FormModel) subdivisionHint() string {
	region := strings.ToLower(strings.TrimSpace(m.inputs[fieldRegion].Value()))
	subs := geo.Subdivisions(region)
	if len(subs) == 0 {
		return ""
	}
	const maxShown = 6
	if len(subs) > maxShown {
		return strings.Join(subs[:maxShown], ", ") + fmt.Sprintf(", ... (%d total)", len(subs))
	}
	return strings.Join(subs, ", ")
}

func (m FormModel) renderMode() string {
	label := styles.Label.Render("Mode:")

	active := lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(styles.Muted)

	parts := make([]string, len(formModes))
	for i, mode := range formModes {
		if i == m.modeIdx {
			parts[i] = active.Render("< " + string(mode) + " >")
		} else {
			parts[i] = inactive.Render(string(mode))
		}
	}

	line := fmt.Sprintf("%s %s", label, strings.Join(parts, "  "))
	if m.focused == fieldMode {
		line += lipgloss.NewStyle().Foreground(styles.Secondary).Render(" ←→")
	}
	return line + "\n"
}

func (m FormModel) renderLiteral() string {
	label := styles.Label.Render("Literal phrase:")

	active := lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(styles.Muted)

	var onStr, offStr string
	if m.literal {
		onStr = active.Render("< yes >")
		offStr = inactive.Render("no")
	} else {
		onStr = inactive.Render("yes")
		offStr = active.Render("< no >")
	}

	line := fmt.Sprintf("%s %s  %s", label, offStr, onStr)
	if m.focused == fieldLiteral {
		line += lipgloss.NewStyle().Foreground(styles.Secondary).Render(" ←→")
	}
	return line + "\n"
}

func (m FormModel) renderField(label string, idx int) string {
	l := styles.Label.Render(label)
	v := m.inputs[idx].View()
	return fmt.Sprintf("%s %s\n", l, v)
}

// StartRunMsg carries validated run parameters from the form.
type StartRunMsg struct {
	Params model.RunParams
}
