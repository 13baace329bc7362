package dedupe

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/dedupe-cli/internal/similarity"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

// Reporter receives (comparisons done, total comparisons) while a run
// progresses. Calls are serialized. A final call with done == total marks
// completion.
type Reporter interface {
	Progress(done, total int)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(done, total int)

func (f ReporterFunc) Progress(done, total int) { f(done, total) }

// Linkage selects how matching pairs become clusters.
type Linkage string

const (
	// LinkageAnchor walks each block in order; every unprocessed record
	// becomes an anchor and absorbs the later unprocessed records that
	// score at or above the threshold against it. Members are similar to
	// the anchor, not necessarily to each other.
	LinkageAnchor Linkage = "anchor"
	// LinkageComponents compares every pair in a block and clusters the
	// connected components of the "similar" relation.
	LinkageComponents Linkage = "components"
)

// ParseLinkage accepts "anchor" (or "") and "components".
func ParseLinkage(s string) (Linkage, error) {
	switch Linkage(strings.ToLower(strings.TrimSpace(s))) {
	case "", LinkageAnchor:
		return LinkageAnchor, nil
	case LinkageComponents:
		return LinkageComponents, nil
	}
	return "", &ConfigError{Field: "linkage", Value: s, Reason: "use anchor or components"}
}

// Options configures FindDuplicates.
type Options struct {
	// Threshold is the minimum similarity, in [0,1], for two records to be grouped.
	Threshold float64
	// LeadingChars is the block key length in runes.
	LeadingChars int
	Linkage      Linkage
	// Workers bounds how many blocks are processed at once; 0 means runtime.NumCPU().
	Workers int
	// Progress is optional. ProgressEvery sets the reporting cadence in comparisons.
	Progress      Reporter
	ProgressEvery int
	// Scorer defaults to a similarity.Cached token-set scorer over the input records.
	Scorer similarity.Scorer
	Logger *zap.Logger
}

// DefaultOptions mirrors the interactive defaults: threshold 0.9, 3 leading characters.
func DefaultOptions() Options {
	return Options{
		Threshold:     0.9,
		LeadingChars:  3,
		Linkage:       LinkageAnchor,
		Workers:       1,
		ProgressEvery: 100,
	}
}

// Validate rejects settings outside their hard domain.
func (o Options) Validate() error {
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return &ConfigError{Field: "threshold", Value: o.Threshold, Reason: "must be within [0, 1]"}
	}
	if o.LeadingChars < 1 {
		return &ConfigError{Field: "leading_chars", Value: o.LeadingChars, Reason: "must be at least 1"}
	}
	if o.Workers < 0 {
		return &ConfigError{Field: "workers", Value: o.Workers, Reason: "must not be negative"}
	}
	if _, err := ParseLinkage(string(o.Linkage)); err != nil {
		return err
	}
	return nil
}

// Cluster is a set of record indices judged to be duplicates, sorted ascending.
type Cluster []int

// Result is the outcome of one detection run.
type Result struct {
	// Clusters are disjoint and in emission order.
	Clusters         []Cluster
	Blocks           int
	Comparisons      int
	TotalComparisons int
	Duration         time.Duration
}

// DuplicateRecords counts records that belong to some cluster.
func (r *Result) DuplicateRecords() int {
	n := 0
	for _, c := range r.Clusters {
		n += len(c)
	}
	return n
}

// FindDuplicates blocks the records, scores pairs inside each block and
// groups the matches. Options are validated before any work; an invalid
// setting returns a *ConfigError. Cancelling ctx aborts the run with
// ctx.Err() and no partial result.
func FindDuplicates(ctx context.Context, records []table.Record, opt Options) (*Result, error) {
	if opt.Linkage == "" {
		opt.Linkage = LinkageAnchor
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	linkage, _ := ParseLinkage(string(opt.Linkage))
	if opt.ProgressEvery <= 0 {
		opt.ProgressEvery = 100
	}
	workers := opt.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	blocks, err := BuildBlocks(records, opt.LeadingChars)
	if err != nil {
		return nil, err
	}
	scorer := opt.Scorer
	if scorer == nil {
		scorer = similarity.NewCached(records)
	}
	byIndex := make(map[int]table.Record, len(records))
	for _, r := range records {
		byIndex[r.Index] = r
	}
	rn := &run{
		opt:       opt,
		linkage:   linkage,
		scorer:    scorer,
		records:   byIndex,
		processed: newProcessedSet(),
		total:     TotalComparisons(blocks),
		log:       log,
	}
	log.Debug("blocking complete",
		zap.Int("records", len(records)),
		zap.Int("blocks", len(blocks)),
		zap.Int("total_comparisons", rn.total),
		zap.Int("workers", workers))

	perBlock := make([][]Cluster, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, b := range blocks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			cl, err := rn.groupBlock(gctx, b)
			perBlock[i] = cl
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Blocks:           len(blocks),
		Comparisons:      int(rn.done.Load()),
		TotalComparisons: rn.total,
	}
	for _, cl := range perBlock {
		res.Clusters = append(res.Clusters, cl...)
	}
	rn.report(rn.total)
	res.Duration = time.Since(start)
	log.Debug("duplicate detection complete",
		zap.Int("clusters", len(res.Clusters)),
		zap.Int("duplicate_records", res.DuplicateRecords()),
		zap.Int("comparisons", res.Comparisons),
		zap.Duration("duration", res.Duration))
	return res, nil
}

type run struct {
	opt       Options
	linkage   Linkage
	scorer    similarity.Scorer
	records   map[int]table.Record
	processed *processedSet
	total     int
	done      atomic.Int64
	reportMu  sync.Mutex
	log       *zap.Logger
}

func (rn *run) groupBlock(ctx context.Context, b Block) ([]Cluster, error) {
	if rn.linkage == LinkageComponents {
		return rn.componentsBlock(ctx, b)
	}
	return rn.anchorBlock(ctx, b)
}

func (rn *run) anchorBlock(ctx context.Context, b Block) ([]Cluster, error) {
	var out []Cluster
	for i, anchor := range b.Indices {
		if rn.processed.has(anchor) {
			continue
		}
		group := Cluster{anchor}
		ra := rn.records[anchor]
		for _, other := range b.Indices[i+1:] {
			if rn.processed.has(other) {
				continue
			}
			score := rn.scorer.Score(ra, rn.records[other])
			if err := rn.tick(ctx); err != nil {
				return nil, err
			}
			if score >= rn.opt.Threshold && rn.processed.claim(other) {
				group = append(group, other)
			}
		}
		rn.processed.claim(anchor)
		if len(group) > 1 {
			sort.Ints(group)
			out = append(out, group)
		}
	}
	return out, nil
}

func (rn *run) componentsBlock(ctx context.Context, b Block) ([]Cluster, error) {
	n := len(b.Indices)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i := 0; i < n; i++ {
		ri := rn.records[b.Indices[i]]
		for j := i + 1; j < n; j++ {
			score := rn.scorer.Score(ri, rn.records[b.Indices[j]])
			if err := rn.tick(ctx); err != nil {
				return nil, err
			}
			if score >= rn.opt.Threshold {
				pi, pj := find(i), find(j)
				if pi != pj {
					if pj < pi {
						pi, pj = pj, pi
					}
					parent[pj] = pi
				}
			}
		}
	}
	members := map[int]Cluster{}
	var roots []int
	for i, idx := range b.Indices {
		if !rn.processed.claim(idx) {
			continue
		}
		root := find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], idx)
	}
	var out []Cluster
	for _, root := range roots {
		c := members[root]
		if len(c) > 1 {
			sort.Ints(c)
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out, nil
}

// tick counts one comparison, reports progress on cadence and checks for
// cancellation at the same points.
func (rn *run) tick(ctx context.Context) error {
	n := int(rn.done.Add(1))
	if n%rn.opt.ProgressEvery != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rn.report(n)
	return nil
}

// report forwards to the Reporter. A panicking reporter is logged and
// otherwise ignored so it cannot change the result.
func (rn *run) report(done int) {
	if rn.opt.Progress == nil {
		return
	}
	rn.reportMu.Lock()
	defer rn.reportMu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			rn.log.Warn("progress reporter failed", zap.String("panic", fmt.Sprint(p)))
		}
	}()
	rn.opt.Progress.Progress(done, rn.total)
}

// processedSet tracks records already placed in a cluster or confirmed
// unique. It is shared by every block of a run.
type processedSet struct {
	mu  sync.Mutex
	ids map[int]struct{}
}

func newProcessedSet() *processedSet {
	return &processedSet{ids: map[int]struct{}{}}
}

func (p *processedSet) has(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.ids[i]
	return ok
}

// claim marks i processed and reports whether this call was the one that did so.
func (p *processedSet) claim(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ids[i]; ok {
		return false
	}
	p.ids[i] = struct{}{}
	return true
}
