package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/canopyscan/canopy/pkg/npm"
	"github.com/canopyscan/canopy/pkg/runner"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// ProjectListModel is the bubbletea model for interactive workspace
// project selection. Multiple projects can be checked before confirming.
type ProjectListModel struct {
	Projects  []npm.WorkspaceProject
	Cursor    int
	Checked   map[int]bool
	Confirmed bool
}

// NewProjectListModel creates a project list model with every project
// checked, matching the default of resolving the whole workspace.
func NewProjectListModel(projects []npm.WorkspaceProject) ProjectListModel {
	checked := make(map[int]bool, len(projects))
	for i := range projects {
		checked[i] = true
	}
	return ProjectListModel{Projects: projects, Checked: checked}
}

func (m ProjectListModel) Init() tea.Cmd {
	return nil
}

func (m ProjectListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < len(m.Projects)-1 {
				m.Cursor++
			}
		case " ":
			m.Checked[m.Cursor] = !m.Checked[m.Cursor]
		case "a":
			all := true
			for i := range m.Projects {
				if !m.Checked[i] {
					all = false
					break
				}
			}
			for i := range m.Projects {
				m.Checked[i] = !all
			}
		case "enter":
			m.Confirmed = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ProjectListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Workspace Projects"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("arrows: navigate  space: toggle  a: all  enter: confirm  q: quit"))
	b.WriteString("\n\n")

	for i, p := range m.Projects {
		cursor := "  "
		if i == m.Cursor {
			cursor = "> "
		}

		mark := "[ ]"
		if m.Checked[i] {
			mark = StyleSuccess.Render("[x]")
		}

		name := p.Manifest.Name
		if name == "" {
			name = p.RootDir
		}
		line := fmt.Sprintf("%s%s %-30s %s", cursor, mark, name, listDimStyle.Render(p.RootDir))

		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render(line))
		} else {
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	n := 0
	for _, v := range m.Checked {
		if v {
			n++
		}
	}
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d selected]", n, len(m.Projects))))

	return b.String()
}

// Selected returns the names of the checked projects.
func (m ProjectListModel) Selected() []string {
	var names []string
	for i, p := range m.Projects {
		if !m.Checked[i] {
			continue
		}
		name := p.Manifest.Name
		if name == "" {
			name = p.RootDir
		}
		names = append(names, name)
	}
	return names
}

// pickProjects discovers the workspace projects under dir and lets the
// user narrow the run to a subset. Quitting without confirming keeps
// the full workspace.
func pickProjects(ctx context.Context, run runner.Runner, logger *log.Logger, dir string) ([]string, error) {
	projects, err := npm.DiscoverProjects(ctx, run, logger, dir)
	if err != nil {
		return nil, err
	}
	if len(projects) <= 1 {
		return nil, nil
	}

	prog := tea.NewProgram(NewProjectListModel(projects), tea.WithContext(ctx))
	final, err := prog.Run()
	if err != nil {
		return nil, fmt.Errorf("project selection: %w", err)
	}
	model := final.(ProjectListModel)
	if !model.Confirmed {
		return nil, nil
	}
	return model.Selected(), nil
}
