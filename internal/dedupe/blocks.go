package dedupe

import (
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

// Block is a set of records whose comparison text shares a lowercased
// prefix. Only records inside the same block are ever compared.
type Block struct {
	Key     string
	Indices []int
}

// BlockKey returns the lowercased first leadingChars runes of text. ok is
// false when text is shorter than leadingChars; such records are never
// placed in a block and therefore always reported unique.
func BlockKey(text string, leadingChars int) (key string, ok bool) {
	if leadingChars < 1 || utf8.RuneCountInString(text) < leadingChars {
		return "", false
	}
	end := 0
	for i := 0; i < leadingChars; i++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return strings.ToLower(text[:end]), true
}

// BuildBlocks groups records by BlockKey. Blocks come back in the order
// their key first appears and keep records in input order; blocks with a
// single member are dropped because they cannot hold a duplicate pair.
func BuildBlocks(records []table.Record, leadingChars int) ([]Block, error) {
	if leadingChars < 1 {
		return nil, &ConfigError{Field: "leading_chars", Value: leadingChars, Reason: "must be at least 1"}
	}
	pos := map[string]int{}
	var all []Block
	for _, r := range records {
		key, ok := BlockKey(table.ComparisonText(r), leadingChars)
		if !ok {
			continue
		}
		i, seen := pos[key]
		if !seen {
			i = len(all)
			pos[key] = i
			all = append(all, Block{Key: key})
		}
		all[i].Indices = append(all[i].Indices, r.Index)
	}
	out := all[:0]
	for _, b := range all {
		if len(b.Indices) > 1 {
			out = append(out, b)
		}
	}
	return out, nil
}

// TotalComparisons is the number of pairs inside all blocks, the upper
// bound on similarity computations for a run.
func TotalComparisons(blocks []Block) int {
	total := 0
	for _, b := range blocks {
		total += PossibleComparisons(len(b.Indices))
	}
	return total
}

// PossibleComparisons is n*(n-1)/2, the size of the full comparison matrix.
func PossibleComparisons(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// PlanStats describes the comparison space a run would explore.
type PlanStats struct {
	Records      int
	Eligible     int // records long enough to be blocked
	Excluded     int // records shorter than leadingChars
	Blocks       int
	LargestBlock int
	Comparisons  int
	Possible     int
}

// Ratio is the share of the full matrix that blocking keeps, in [0,1].
func (p PlanStats) Ratio() float64 {
	if p.Possible == 0 {
		return 0
	}
	return float64(p.Comparisons) / float64(p.Possible)
}

// Plan computes blocking statistics without scoring anything.
func Plan(records []table.Record, leadingChars int) (PlanStats, error) {
	blocks, err := BuildBlocks(records, leadingChars)
	if err != nil {
		return PlanStats{}, err
	}
	st := PlanStats{
		Records:     len(records),
		Blocks:      len(blocks),
		Comparisons: TotalComparisons(blocks),
		Possible:    PossibleComparisons(len(records)),
	}
	for _, r := range records {
		if _, ok := BlockKey(table.ComparisonText(r), leadingChars); ok {
			st.Eligible++
		}
	}
	st.Excluded = st.Records - st.Eligible
	for _, b := range blocks {
		if len(b.Indices) > st.LargestBlock {
			st.LargestBlock = len(b.Indices)
		}
	}
	return st, nil
}
