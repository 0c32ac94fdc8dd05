package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/llm"
	"github.com/Whopus/Repox/internal/pipeline"
	"github.com/Whopus/Repox/internal/storage"
)

// errNoContext is returned when nothing in the repository fit the question.
var errNoContext = errors.New("no relevant files found for this question")

var (
	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	scrollHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

// askResult is an answered question with the context it was answered from.
type askResult struct {
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Model    string           `json:"model"`
	Build    *pipeline.Result `json:"context"`
	Duration time.Duration    `json:"duration"`
}

type askOptions struct {
	useModel bool
	record   bool
}

// askQuestion ranks and packs the repository for question, then asks the
// strong model. The answer is recorded in history on a best-effort basis.
func askQuestion(ctx context.Context, env *runtimeEnv, question string, opts askOptions) (*askResult, error) {
	start := time.Now()

	client, err := env.client()
	if err != nil {
		return nil, err
	}

	p, err := env.pipeline(env.scorer(ctx, opts.useModel))
	if err != nil {
		return nil, err
	}

	build, err := p.Build(ctx, question)
	if err != nil {
		return nil, err
	}
	if build.Packed.Empty() {
		return nil, errNoContext
	}

	answerer := llm.NewAnswerer(client, env.cfg.LLM.StrongModel, env.cfg.LLM.Temperature, env.cfg.LLM.MaxTokens)
	answer, err := answerer.Answer(ctx, question, build.Rendered)
	if err != nil {
		return nil, err
	}

	result := &askResult{
		Question: question,
		Answer:   answer,
		Model:    answerer.Model(),
		Build:    build,
		Duration: time.Since(start),
	}

	if opts.record {
		recordAnswer(ctx, env, result)
	}
	return result, nil
}

func recordAnswer(ctx context.Context, env *runtimeEnv, result *askResult) {
	h, err := env.history()
	if err != nil {
		env.logger.Debug("History not recorded", zap.Error(err))
		return
	}

	rec := &storage.Record{
		Question: result.Question,
		Class:    result.Build.Query.Class.String(),
		Files:    result.Build.Packed.Sources(),
		Tokens:   result.Build.Packed.TotalTokens,
		Answer:   result.Answer,
	}
	if err := h.Save(ctx, rec); err != nil {
		env.logger.Warn("Failed to record history", zap.Error(err))
	}
}

type askModel struct {
	question string
	provider string
	model    string
	run      func() (*askResult, error)
	cancel   context.CancelFunc

	// State
	loading bool
	spinner int
	result  *askResult
	err     error

	// Viewport for scrolling
	viewport viewport.Model
	ready    bool
}

type tickMsg time.Time

type resultMsg struct {
	result *askResult
	err    error
}

func (m askModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		func() tea.Msg {
			result, err := m.run()
			return resultMsg{result: result, err: err}
		},
	)
}

func (m askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ready && !m.loading {
			switch msg.String() {
			case "q", "ctrl+c", "esc":
				return m, tea.Quit
			default:
				m.viewport, cmd = m.viewport.Update(msg)
				return m, cmd
			}
		} else if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		if !m.loading {
			m.viewport.SetContent(m.buildResultView())
		}

	case tickMsg:
		m.spinner = (m.spinner + 1) % len(spinnerFrames)
		if m.loading {
			return m, tickCmd()
		}

	case resultMsg:
		m.loading = false
		m.result = msg.result
		m.err = msg.err
		m.viewport.SetContent(m.buildResultView())
		return m, nil
	}

	return m, cmd
}

func (m askModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	var s strings.Builder

	s.WriteString(promptStyle.Render("Question: "))
	s.WriteString(m.question)
	s.WriteString("\n\n")

	if m.loading {
		s.WriteString(spinnerFrames[m.spinner])
		s.WriteString(" ")
		s.WriteString(fmt.Sprintf("Ranking files and querying %s (%s)...", m.provider, m.model))
		s.WriteString("\n")
		s.WriteString(sourceStyle.Render("This may take 10-30 seconds..."))
		return s.String()
	}

	s.WriteString(m.viewport.View())
	s.WriteString("\n")

	if m.viewport.TotalLineCount() > m.viewport.Height {
		s.WriteString(scrollHintStyle.Render(fmt.Sprintf(
			"↑/↓: scroll • %d%% • q: quit",
			int(m.viewport.ScrollPercent()*100),
		)))
	} else {
		s.WriteString(scrollHintStyle.Render("Press q to quit"))
	}

	return s.String()
}

func (m askModel) buildResultView() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf(" Error: %v", m.err)))
		s.WriteString("\n\n")
		if !errors.Is(m.err, errNoContext) {
			s.WriteString(sourceStyle.Render("Troubleshooting:\n"))
			s.WriteString(sourceStyle.Render("  1. Check the [llm] section of repox.toml\n"))
			s.WriteString(sourceStyle.Render("  2. Make sure your API key is set\n"))
			s.WriteString(sourceStyle.Render("  3. Run with --verbose for details\n"))
		}
		return s.String()
	}

	if m.result == nil {
		s.WriteString(errorStyle.Render(" No result received\n"))
		return s.String()
	}

	if m.result.Answer != "" {
		s.WriteString(renderMarkdown(m.result.Answer, m.viewport.Width-2))
	} else {
		s.WriteString(errorStyle.Render(":(  Received empty response from LLM\n\n"))
	}

	s.WriteString(sourceStyle.Render(formatSources(m.result.Build)))
	s.WriteString(sourceStyle.Render(fmt.Sprintf("⏱ Response time: %.2fs\n", m.result.Duration.Seconds())))

	return s.String()
}

// formatSources lists the files the answer was built from.
func formatSources(build *pipeline.Result) string {
	if build == nil || build.Packed == nil || build.Packed.Empty() {
		return ""
	}

	var s strings.Builder
	s.WriteString("≡ Sources:\n")
	for _, e := range build.Packed.Entries {
		line := fmt.Sprintf("  • %s (%d tokens)", e.File, e.Tokens)
		if e.Truncated {
			line += " [truncated]"
		}
		s.WriteString(line + "\n")
	}
	s.WriteString(fmt.Sprintf("  %d/%d tokens from %d of %d ranked files\n\n",
		build.Packed.TotalTokens, build.Packed.Budget, len(build.Packed.Entries), build.Ranking.Len()))
	return s.String()
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunAsk answers question in the interactive viewer.
func RunAsk(ctx context.Context, env *runtimeEnv, question string, opts askOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := askModel{
		question: question,
		provider: env.cfg.LLM.Provider,
		model:    env.cfg.LLM.StrongModel,
		cancel:   cancel,
		loading:  true,
		run: func() (*askResult, error) {
			return askQuestion(ctx, env, question, opts)
		},
	}

	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
