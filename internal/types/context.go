package types

// ContentChunk is an excerpt of one file. A file's chunks keep the file's
// original line order.
type ContentChunk struct {
	File    string `json:"file"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
}

// PackState is the packer's position in its run.
type PackState string

const (
	StateAccumulating PackState = "accumulating"
	StateTruncating   PackState = "truncating-final-file"
	StateDone         PackState = "done"
)

// PackedEntry is one file's contribution to a packed context.
type PackedEntry struct {
	File      string `json:"file"`
	Content   string `json:"content"`
	Tokens    int    `json:"tokens"`
	Truncated bool   `json:"truncated,omitempty"`
}

// PackedContext is the budget-bounded output of the packer.
// TotalTokens never exceeds Budget.
type PackedContext struct {
	Entries     []PackedEntry `json:"entries"`
	TotalTokens int           `json:"total_tokens"`
	Budget      int           `json:"budget"`
	State       PackState     `json:"state"`
	Dropped     []string      `json:"dropped,omitempty"`
}

// Sources lists the packed file paths in order.
func (p *PackedContext) Sources() []string {
	sources := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		sources = append(sources, e.File)
	}
	return sources
}

func (p *PackedContext) Empty() bool {
	return len(p.Entries) == 0
}

// Truncated reports whether the last entry was cut to fit the budget.
func (p *PackedContext) Truncated() bool {
	return len(p.Entries) > 0 && p.Entries[len(p.Entries)-1].Truncated
}
