// Package report renders human-readable run summaries and machine-readable
// run manifests.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/KaramelBytes/dedupe-cli/internal/annotate"
	"github.com/KaramelBytes/dedupe-cli/internal/dedupe"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

// Settings echoes the options a run used.
type Settings struct {
	Threshold    float64 `json:"threshold"`
	LeadingChars int     `json:"leading_chars"`
	Linkage      string  `json:"linkage"`
	Workers      int     `json:"workers"`
}

// Group is one duplicate group as listed in the summary.
type Group struct {
	ID   int   `json:"id"`
	Rows []int `json:"rows"`
}

// Report is everything the Markdown summary shows.
type Report struct {
	Name        string
	Rows        int
	Columns     int
	Settings    Settings
	Plan        dedupe.PlanStats
	Comparisons int
	Duration    time.Duration
	Summary     annotate.Summary
	Groups      []Group
	// Preview holds the first rows of the annotated table, header first.
	Preview  [][]string
	Warnings []string
	// MaxGroups caps the [GROUPS] listing; 0 lists all.
	MaxGroups int
}

// Build assembles a Report from a finished run. out is the annotated table;
// previewRows of it are kept for the [PREVIEW] section.
func Build(src *table.Frame, out *table.Frame, st Settings, plan dedupe.PlanStats, res *dedupe.Result, anns []annotate.Annotation, previewRows int) *Report {
	r := &Report{
		Name:        src.Name,
		Rows:        src.Rows(),
		Columns:     src.Cols(),
		Settings:    st,
		Plan:        plan,
		Comparisons: res.Comparisons,
		Duration:    res.Duration,
		Summary:     annotate.Summarize(anns),
		Groups:      Groups(anns),
		Warnings:    append([]string(nil), src.Warnings...),
		MaxGroups:   20,
	}
	if out != nil && previewRows > 0 {
		r.Preview = append(r.Preview, append([]string(nil), out.Header...))
		for i := 0; i < out.Rows() && i < previewRows; i++ {
			row := make([]string, out.Cols())
			for j := range row {
				row[j] = out.Field(i, j).String()
			}
			r.Preview = append(r.Preview, row)
		}
	}
	return r
}

// Groups collects the distinct groups from annotations, ordered by id.
func Groups(anns []annotate.Annotation) []Group {
	seen := map[int]bool{}
	var out []Group
	for _, a := range anns {
		if a.Group == annotate.Unique || seen[a.Group] {
			continue
		}
		seen[a.Group] = true
		out = append(out, Group{ID: a.Group, Rows: a.Rows})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PlanLine is the one-line comparison estimate shown before a run.
func PlanLine(p dedupe.PlanStats) string {
	return fmt.Sprintf("Will perform %s comparisons (reduced from %s possible comparisons - %.1f%% of original)",
		humanize.Comma(int64(p.Comparisons)), humanize.Comma(int64(p.Possible)), p.Ratio()*100)
}

// FoundLine is the one-line result headline.
func FoundLine(s annotate.Summary) string {
	return fmt.Sprintf("Found %s records in %s duplicate groups",
		humanize.Comma(int64(s.DuplicateRecords)), humanize.Comma(int64(s.Groups)))
}

// Markdown renders the report in bracketed sections.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DEDUPE SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %s\n", humanize.Comma(int64(r.Rows))))
	b.WriteString(fmt.Sprintf("Columns: %d\n", r.Columns))
	b.WriteString(FoundLine(r.Summary) + "\n")
	if r.Summary.LargestGroup > 0 {
		b.WriteString(fmt.Sprintf("Largest group: %d records\n", r.Summary.LargestGroup))
	}

	b.WriteString("\n[SETTINGS]\n")
	b.WriteString(fmt.Sprintf("- threshold: %.2f\n", r.Settings.Threshold))
	b.WriteString(fmt.Sprintf("- leading characters: %d\n", r.Settings.LeadingChars))
	b.WriteString(fmt.Sprintf("- linkage: %s\n", r.Settings.Linkage))
	b.WriteString(fmt.Sprintf("- workers: %d\n", r.Settings.Workers))

	b.WriteString("\n[COMPARISONS]\n")
	b.WriteString(PlanLine(r.Plan) + "\n")
	b.WriteString(fmt.Sprintf("- blocks: %d (largest %d records)\n", r.Plan.Blocks, r.Plan.LargestBlock))
	if r.Plan.Excluded > 0 {
		b.WriteString(fmt.Sprintf("- records too short to block: %d\n", r.Plan.Excluded))
	}
	b.WriteString(fmt.Sprintf("- performed: %s in %s\n", humanize.Comma(int64(r.Comparisons)), r.Duration.Round(time.Millisecond)))

	if len(r.Groups) > 0 {
		b.WriteString("\n[GROUPS]\n")
		lim := len(r.Groups)
		if r.MaxGroups > 0 && lim > r.MaxGroups {
			lim = r.MaxGroups
		}
		for _, g := range r.Groups[:lim] {
			b.WriteString(fmt.Sprintf("- group %d (n=%d): rows %s\n", g.ID, len(g.Rows), annotate.Annotation{Rows: g.Rows}.RowsString()))
		}
		if lim < len(r.Groups) {
			b.WriteString(fmt.Sprintf("- … %d more\n", len(r.Groups)-lim))
		}
	}

	if len(r.Preview) > 1 {
		b.WriteString("\n[PREVIEW]\n")
		head := r.Preview[0]
		writeRow(&b, head, len(head))
		sep := make([]string, len(head))
		for i := range sep {
			sep[i] = "---"
		}
		writeRow(&b, sep, len(head))
		for _, row := range r.Preview[1:] {
			writeRow(&b, row, len(head))
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

func writeRow(b *strings.Builder, row []string, n int) {
	b.WriteString("| ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(" | ")
		}
		val := ""
		if i < len(row) {
			val = safeVal(row[i])
		}
		b.WriteString(val)
	}
	b.WriteString(" |\n")
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
