package similarity

import (
	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

// Scorer computes a symmetric similarity in [0,1] between two records.
type Scorer interface {
	Score(a, b table.Record) float64
}

// TokenSet scores records by the token-set ratio of their comparison text.
type TokenSet struct{}

func (TokenSet) Score(a, b table.Record) float64 {
	return TokenSetRatio(table.ComparisonText(a), table.ComparisonText(b))
}

// Cached is a TokenSet scorer that folds and tokenizes each record once.
// It is safe for concurrent use after construction.
type Cached struct {
	prep map[int]prepared
}

// NewCached prepares every record up front.
func NewCached(records []table.Record) *Cached {
	c := &Cached{prep: make(map[int]prepared, len(records))}
	for _, r := range records {
		c.prep[r.Index] = prepare(table.ComparisonText(r))
	}
	return c
}

func (c *Cached) Score(a, b table.Record) float64 {
	pa, ok := c.prep[a.Index]
	if !ok {
		pa = prepare(table.ComparisonText(a))
	}
	pb, ok := c.prep[b.Index]
	if !ok {
		pb = prepare(table.ComparisonText(b))
	}
	return scorePrepared(pa, pb)
}
