// Package view renders module and target status for the terminal.
package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vk/pipeforge/internal/pipeline"
	"github.com/vk/pipeforge/internal/target"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true)

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	upToDateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4CAF50"))

	staleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	buildingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

// Module renders one module's status block: the pipeline provenance
// header followed by one line per target. With all false only primary
// targets are listed; modules without primary targets list everything.
func Module(m *pipeline.Module, all bool) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(m.CodenamePipeline()))
	b.WriteString("  ")
	b.WriteString(dirStyle.Render(m.Dir))
	b.WriteByte('\n')

	names := m.TargetNames()
	if !all {
		if primary := m.PrimaryTargetNames(); len(primary) > 0 {
			names = primary
		}
	}

	width := 0
	for _, name := range names {
		if len(name) > width {
			width = len(name)
		}
	}

	for _, name := range names {
		t, err := m.Target(name)
		if err != nil {
			continue
		}
		b.WriteString(TargetLine(t, width))
		b.WriteByte('\n')
	}
	return b.String()
}

// TargetLine renders one target's status line, name padded to width.
func TargetLine(t *target.Target, width int) string {
	state := t.State()

	var style lipgloss.Style
	switch state {
	case target.StateUpToDate:
		style = upToDateStyle
	case target.StateBuilding:
		style = buildingStyle
	default:
		style = staleStyle
	}

	marker := " "
	if t.Primary {
		marker = "*"
	}

	return fmt.Sprintf("  %s %-*s  %s  %s",
		marker,
		width, t.Name,
		style.Render(fmt.Sprintf("%-10s", state)),
		metaStyle.Render(fmt.Sprintf("[%d@%s]", t.Depth, t.Class)))
}
