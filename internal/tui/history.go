// Package tui holds the interactive terminal views.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Whopus/Repox/internal/storage"
)

// RecordDeleter removes a history record by id.
type RecordDeleter interface {
	Delete(ctx context.Context, id string) error
}

// HistoryModel browses answered questions, newest first.
type HistoryModel struct {
	list       list.Model
	viewport   viewport.Model
	records    []storage.Record
	store      RecordDeleter
	selected   int
	width      int
	height     int
	showDetail bool
	quitting   bool
	status     string
}

type recordItem struct {
	record storage.Record
	index  int
}

type keyMap struct {
	Enter  key.Binding
	Delete key.Binding
	Back   key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "view details"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d", "delete"),
		key.WithHelp("d", "delete entry"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "b"),
		key.WithHelp("esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (i recordItem) Title() string {
	return fmt.Sprintf("[%d] %s", i.index+1, truncate(i.record.Question, 60))
}

func (i recordItem) Description() string {
	return fmt.Sprintf("%s • %s • %d files • %s tokens",
		humanize.Time(i.record.CreatedAt),
		i.record.Class,
		len(i.record.Files),
		humanize.Comma(int64(i.record.Tokens)))
}

func (i recordItem) FilterValue() string {
	return i.record.Question
}

// deletedMsg reports the outcome of a delete.
type deletedMsg struct {
	id  string
	err error
}

// HistoryView builds the browser over records. store may be nil, which
// disables deletion.
func HistoryView(records []storage.Record, store RecordDeleter) HistoryModel {
	l := list.New(toItems(records), list.NewDefaultDelegate(), 0, 0)
	l.Title = "📚 Question History"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.Enter, keys.Delete}
	}

	return HistoryModel{
		list:     l,
		viewport: viewport.New(0, 0),
		records:  records,
		store:    store,
	}
}

func toItems(records []storage.Record) []list.Item {
	items := make([]list.Item, len(records))
	for i, r := range records {
		items[i] = recordItem{record: r, index: i}
	}
	return items
}

func (m HistoryModel) Init() tea.Cmd {
	return nil
}

func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		h, v := lipgloss.NewStyle().GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v-4)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 6
		if m.showDetail {
			m.viewport.SetContent(m.renderDetail())
		}

	case deletedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Delete failed: %v", msg.err)
			return m, nil
		}
		m.removeRecord(msg.id)
		m.status = "Entry deleted"
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		if m.showDetail {
			switch {
			case key.Matches(msg, keys.Back), msg.String() == "q":
				m.showDetail = false
				return m, nil
			case key.Matches(msg, keys.Delete):
				return m, m.deleteSelected()
			}
		} else {
			switch {
			case key.Matches(msg, keys.Quit):
				m.quitting = true
				return m, tea.Quit
			case key.Matches(msg, keys.Enter):
				if len(m.records) == 0 {
					return m, nil
				}
				m.selected = m.list.Index()
				m.showDetail = true
				m.viewport.SetContent(m.renderDetail())
				m.viewport.GotoTop()
				return m, nil
			case key.Matches(msg, keys.Delete):
				m.selected = m.list.Index()
				return m, m.deleteSelected()
			}
		}
	}

	var cmd tea.Cmd
	if m.showDetail {
		m.viewport, cmd = m.viewport.Update(msg)
	} else {
		m.list, cmd = m.list.Update(msg)
	}

	return m, cmd
}

func (m HistoryModel) View() string {
	if m.quitting {
		return ""
	}

	if m.showDetail {
		return m.renderDetailView()
	}

	return m.renderListView()
}

func (m HistoryModel) renderListView() string {
	var b strings.Builder

	b.WriteString(m.list.View())
	b.WriteString("\n")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(1, 0)
	help := "enter: view • d: delete • q: quit"
	if m.status != "" {
		help = m.status + " • " + help
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m HistoryModel) renderDetailView() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("39")).
		Padding(0, 1).
		Width(m.width - 2)

	contentStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 4)

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("History Entry"))
	b.WriteString("\n\n")
	b.WriteString(contentStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("esc: back • d: delete • ↑/↓: scroll"))

	return b.String()
}

func (m HistoryModel) renderDetail() string {
	if m.selected < 0 || m.selected >= len(m.records) {
		return "Invalid selection"
	}

	rec := m.records[m.selected]

	var b strings.Builder

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	b.WriteString(labelStyle.Render("Question:"))
	b.WriteString("\n")
	b.WriteString(valueStyle.Render(wrapText(rec.Question, m.width-8)))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Answer:"))
	b.WriteString("\n")
	b.WriteString(valueStyle.Render(wrapText(rec.Answer, m.width-8)))
	b.WriteString("\n\n")

	if len(rec.Files) > 0 {
		b.WriteString(labelStyle.Render("Context files:"))
		b.WriteString("\n")
		for _, f := range rec.Files {
			b.WriteString(fmt.Sprintf("  • %s\n", f))
		}
		b.WriteString("\n")
	}

	b.WriteString(labelStyle.Render("Metadata:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Asked:   %s (%s ago)\n",
		rec.CreatedAt.Format("2006-01-02 15:04:05"), formatDuration(time.Since(rec.CreatedAt))))
	b.WriteString(fmt.Sprintf("  Class:   %s\n", rec.Class))
	b.WriteString(fmt.Sprintf("  Tokens:  %s\n", humanize.Comma(int64(rec.Tokens))))
	b.WriteString(fmt.Sprintf("  ID:      %s\n", rec.ID))

	return b.String()
}

func (m HistoryModel) deleteSelected() tea.Cmd {
	if m.store == nil || m.selected < 0 || m.selected >= len(m.records) {
		return nil
	}
	id := m.records[m.selected].ID
	store := m.store
	return func() tea.Msg {
		return deletedMsg{id: id, err: store.Delete(context.Background(), id)}
	}
}

func (m *HistoryModel) removeRecord(id string) {
	for i, r := range m.records {
		if r.ID != id {
			continue
		}
		m.records = append(m.records[:i:i], m.records[i+1:]...)
		m.list.SetItems(toItems(m.records))
		break
	}
	m.showDetail = false
	if m.selected >= len(m.records) {
		m.selected = len(m.records) - 1
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func wrapText(text string, width int) string {
	if width <= 0 {
		width = 80
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var line strings.Builder
		for _, word := range strings.Fields(para) {
			if line.Len() > 0 && line.Len()+1+len(word) > width {
				lines = append(lines, line.String())
				line.Reset()
			}
			if line.Len() > 0 {
				line.WriteString(" ")
			}
			line.WriteString(word)
		}
		lines = append(lines, line.String())
	}

	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
