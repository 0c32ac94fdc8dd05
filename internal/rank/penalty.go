package rank

// PenaltyStep applies Factor to files strictly smaller than Below bytes.
type PenaltyStep struct {
	Below  int64   `toml:"below"`
	Factor float64 `toml:"factor"`
}

// PenaltyTable is a step function over file size. Steps must be sorted by
// Below with non-increasing factors, and Floor must not exceed the last one.
type PenaltyTable struct {
	Steps []PenaltyStep
	Floor float64
}

var DefaultPenalty = PenaltyTable{
	Steps: []PenaltyStep{
		{Below: 10_000, Factor: 1.0},
		{Below: 50_000, Factor: 0.9},
		{Below: 100_000, Factor: 0.8},
		{Below: 500_000, Factor: 0.6},
	},
	Floor: 0.4,
}

func (t PenaltyTable) Apply(size int64) float64 {
	for _, step := range t.Steps {
		if size < step.Below {
			return step.Factor
		}
	}
	return t.Floor
}

// SizePenalty discounts large files using DefaultPenalty.
func SizePenalty(size int64) float64 {
	return DefaultPenalty.Apply(size)
}
