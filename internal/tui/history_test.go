package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whopus/Repox/internal/storage"
)

type fakeDeleter struct {
	deleted []string
	err     error
}

func (f *fakeDeleter) Delete(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func records() []storage.Record {
	now := time.Now()
	return []storage.Record{
		{ID: "a", Question: "where is auth handled", Class: "search", Files: storage.FileList{"src/auth.py"}, Tokens: 1200, Answer: "In src/auth.py.", CreatedAt: now},
		{ID: "b", Question: "explain the packer", Class: "explanation", Tokens: 800, Answer: "It packs.", CreatedAt: now.Add(-time.Hour)},
	}
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func sized(t *testing.T, m HistoryModel) HistoryModel {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(HistoryModel)
}

func TestHistoryViewDetail(t *testing.T) {
	m := sized(t, HistoryView(records(), nil))

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(HistoryModel)

	require.True(t, m.showDetail)
	detail := m.renderDetail()
	assert.Contains(t, detail, "where is auth handled")
	assert.Contains(t, detail, "src/auth.py")
	assert.Contains(t, detail, "1,200")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, next.(HistoryModel).showDetail)
}

func TestHistoryViewDelete(t *testing.T) {
	store := &fakeDeleter{}
	m := sized(t, HistoryView(records(), store))

	_, cmd := m.Update(keyRune('d'))
	require.NotNil(t, cmd)

	msg := cmd()
	next, _ := m.Update(msg)
	m = next.(HistoryModel)

	assert.Equal(t, []string{"a"}, store.deleted)
	require.Len(t, m.records, 1)
	assert.Equal(t, "b", m.records[0].ID)
	assert.Equal(t, "Entry deleted", m.status)
}

func TestHistoryViewDeleteFailure(t *testing.T) {
	store := &fakeDeleter{err: errors.New("locked")}
	m := sized(t, HistoryView(records(), store))

	_, cmd := m.Update(keyRune('d'))
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(HistoryModel)

	assert.Len(t, m.records, 2)
	assert.Contains(t, m.status, "locked")
}

func TestHistoryViewReadOnly(t *testing.T) {
	m := sized(t, HistoryView(records(), nil))
	_, cmd := m.Update(keyRune('d'))
	assert.Nil(t, cmd)
}

func TestHistoryViewQuit(t *testing.T) {
	m := sized(t, HistoryView(records(), nil))
	next, cmd := m.Update(keyRune('q'))
	require.NotNil(t, cmd)
	assert.True(t, next.(HistoryModel).quitting)
	assert.Empty(t, next.(HistoryModel).View())
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))
	assert.Equal(t, "a\n\nb", wrapText("a\n\nb", 10))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30s", formatDuration(30*time.Second))
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "3h", formatDuration(3*time.Hour))
	assert.Equal(t, "2d", formatDuration(49*time.Hour))
}
