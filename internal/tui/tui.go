package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"umapembed/internal/core"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// model is the state of the run browser.
type model struct {
	runs        []core.Run
	selectedIdx int // Index of the highlighted run
	width       int // Terminal width
	height      int // Terminal height
	quitting    bool
}

// NewModel returns a browser over runs, newest first as the catalog lists them.
func NewModel(runs []core.Run) tea.Model {
	return model{runs: runs, width: 100}
}

// Init is the first command that will be run. We don't need any for now.
func (m model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model accordingly.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.runs)-1 {
				m.selectedIdx++
			}
		case "home", "g":
			m.selectedIdx = 0
		case "end", "G":
			if len(m.runs) > 0 {
				m.selectedIdx = len(m.runs) - 1
			}
		}
	}
	return m, nil
}

// View renders the run list beside the highlighted run's details.
func (m model) View() string {
	if m.quitting {
		return ""
	}

	paneWidth := m.width/2 - 5
	if paneWidth < 20 {
		paneWidth = 20
	}
	docStyle := lipgloss.NewStyle().Margin(1, 2)
	listStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	selected := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	var list strings.Builder
	list.WriteString("Runs\n\n")
	if len(m.runs) == 0 {
		list.WriteString("No runs recorded.")
	}
	for i, r := range m.runs {
		entry := fmt.Sprintf("%s  %-10s %s", r.StartedAt.Local().Format("01-02 15:04"), r.Status, r.Tag)
		if i == m.selectedIdx {
			list.WriteString(selected.Render("> " + entry))
		} else {
			list.WriteString("  " + entry)
		}
		list.WriteString("\n")
	}

	detail := "Select a run."
	if m.selectedIdx < len(m.runs) {
		detail = describe(m.runs[m.selectedIdx])
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(list.String()), detailStyle.Render(detail))
	help := "\n\n[↑/k] Up | [↓/j] Down | [q] Quit"
	return docStyle.Render(mainContent + help)
}

// describe formats one run for the detail pane.
func describe(r core.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n\n", r.ID)
	fmt.Fprintf(&b, "tag:          %s\n", r.Tag)
	fmt.Fprintf(&b, "dataset:      %s\n", r.Dataset)
	fmt.Fprintf(&b, "status:       %s\n", r.Status)
	fmt.Fprintf(&b, "observations: %d x %d\n", r.Observations, r.Features)
	if r.Clusters > 0 || r.Noise > 0 {
		fmt.Fprintf(&b, "clusters:     %d (%d noise)\n", r.Clusters, r.Noise)
	}
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(&b, "took:         %s\n", d.Round(time.Millisecond))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "error:        %s\n", r.Error)
	}

	if len(r.Parameters) > 0 {
		b.WriteString("\nParameters\n")
		for _, k := range sortedKeys(r.Parameters) {
			fmt.Fprintf(&b, "  %s = %v\n", k, r.Parameters[k])
		}
	}
	if len(r.Artifacts) > 0 {
		b.WriteString("\nArtifacts\n")
		for _, k := range sortedKeys(r.Artifacts) {
			fmt.Fprintf(&b, "  %s: %s\n", k, r.Artifacts[k])
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Browse runs the interactive run browser until the user quits.
func Browse(runs []core.Run) error {
	p := tea.NewProgram(NewModel(runs), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running run browser: %w", err)
	}
	return nil
}
