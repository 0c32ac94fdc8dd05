package cli

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Whopus/Repox/internal/config"
	"github.com/Whopus/Repox/internal/repository"
	"github.com/Whopus/Repox/internal/storage"
)

const metadataDir = ".repox"

const defaultIgnore = `# Repox ignore patterns (gitignore syntax)

# Dependencies
node_modules/
.venv/
venv/
vendor/

# Build outputs
dist/
build/
target/
*.o
*.so

# IDE
.vscode/
.idea/
*.swp

# Logs
*.log
`

type initStep struct {
	name string
	run  func() error
}

// initSteps lists what init does to root, in order. Existing files are kept
// unless force is set.
func initSteps(root string, cfg *config.Config, force bool) []initStep {
	return []initStep{
		{
			name: "Create " + metadataDir + " directory",
			run: func() error {
				return os.MkdirAll(filepath.Join(root, metadataDir), 0755)
			},
		},
		{
			name: "Create " + repository.IgnoreFileName + " file",
			run: func() error {
				path := filepath.Join(root, repository.IgnoreFileName)
				if exists(path) && !force {
					return nil
				}
				return os.WriteFile(path, []byte(defaultIgnore), 0644)
			},
		},
		{
			name: "Create " + config.FileName,
			run: func() error {
				path := filepath.Join(root, config.FileName)
				if exists(path) && !force {
					return nil
				}
				return config.Save(path, cfg)
			},
		},
		{
			name: "Initialize history database",
			run: func() error {
				if !cfg.Cache.SQL.Enabled {
					return nil
				}
				dsn := cfg.Cache.SQL.DSN
				if dsn != ":memory:" && !filepath.IsAbs(dsn) {
					dsn = filepath.Join(root, dsn)
				}
				h, err := storage.OpenHistory(dsn)
				if err != nil {
					return err
				}
				return h.Close()
			},
		},
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type initModel struct {
	step     int
	steps    []initStep
	complete bool
	err      error
}

type initStepMsg struct {
	step int
	err  error
}

func (m initModel) Init() tea.Cmd {
	return m.runStep(0)
}

func (m initModel) runStep(i int) tea.Cmd {
	return func() tea.Msg {
		if err := m.steps[i].run(); err != nil {
			return initStepMsg{step: i, err: fmt.Errorf("%s: %w", m.steps[i].name, err)}
		}
		return initStepMsg{step: i + 1}
	}
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.complete {
			return m, tea.Quit
		}

	case initStepMsg:
		m.step = msg.step
		if msg.err != nil {
			m.err = msg.err
			m.complete = true
			return m, tea.Quit
		}
		if msg.step >= len(m.steps) {
			m.complete = true
			return m, tea.Quit
		}
		return m, m.runStep(msg.step)
	}

	return m, nil
}

func (m initModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf(" Initialization failed: %v\n", m.err))
	}

	s := titleStyle.Render("Initializing Repox") + "\n"

	for i, step := range m.steps {
		if i < m.step {
			s += successStyle.Render("✓ ") + step.name + "\n"
		} else if i == m.step {
			s += " " + step.name + "...\n"
		} else {
			s += "  " + step.name + "\n"
		}
	}

	if m.complete {
		s += "\n" + successStyle.Render("✨ Repox initialized successfully!") + "\n"
		s += "\nNext steps:\n"
		s += "  1. Review " + repository.IgnoreFileName + " to customize ignore patterns\n"
		s += "  2. Set your API key in " + config.FileName + " or the environment\n"
		s += "  3. Ask: repox ask \"where is the main function?\"\n"
	}

	return s
}

// RunInit initializes root. Without force an existing setup is left alone.
func RunInit(root string, force bool) error {
	if exists(filepath.Join(root, config.FileName)) && !force {
		fmt.Println(":(  Repox is already initialized in this directory (use --force to overwrite)")
		return nil
	}

	m := initModel{steps: initSteps(root, config.DefaultConfig(), force)}

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(initModel); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
