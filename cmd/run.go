package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/dedupe-cli/internal/annotate"
	cfgpkg "github.com/KaramelBytes/dedupe-cli/internal/config"
	"github.com/KaramelBytes/dedupe-cli/internal/dedupe"
	"github.com/KaramelBytes/dedupe-cli/internal/export"
	"github.com/KaramelBytes/dedupe-cli/internal/progress"
	"github.com/KaramelBytes/dedupe-cli/internal/report"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
	"github.com/KaramelBytes/dedupe-cli/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runThreshold    float64
	runLeadingChars int
	runOutput       string
	runFormat       string
	runSummary      bool
	runManifest     bool
	runSheetName    string
	runSheetIndex   int
	runDelimiter    string
	runMaxRows      int
	runWorkers      int
	runLinkage      string
	runInferTypes   bool
	runDecimalSep   string
	runQuiet        bool
	runPreviewRows  int
)

var runCmd = &cobra.Command{
	Use:   "run <files...>",
	Short: "Find near-duplicate rows in CSV/TSV/XLSX files and write annotated copies",
	Long: `Find near-duplicate rows and write a copy of each input with two extra columns:
duplicate_group (-1 for unique rows) and duplicate_rows (the 1-based rows of the group).

Output goes next to the input as <name>.dedupe.<format> unless -o is given; existing
files are never overwritten, a numbered suffix is added instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		c, err := runConfig(cmd)
		if err != nil {
			return err
		}
		outDir := ""
		if runOutput != "" {
			if st, err := os.Stat(runOutput); err == nil && st.IsDir() {
				outDir = runOutput
			} else if len(files) > 1 {
				return fmt.Errorf("--output must be a directory when processing %d files", len(files))
			}
		}
		topt, err := tableOptions(c, runSheetName, runSheetIndex)
		if err != nil {
			return err
		}

		log := newLogger()
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
		defer stop()

		stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
		warnRecommended(stderr, c)

		total := len(files)
		for i, path := range files {
			if !runQuiet && total > 1 {
				fmt.Fprintf(stdout, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			dest := runOutput
			if dest == "" || outDir != "" {
				ext, err := export.Extension(c.OutputFormat)
				if err != nil {
					return err
				}
				dest = utils.DerivedPath(path, "dedupe", ext)
				if outDir != "" {
					dest = filepath.Join(outDir, filepath.Base(dest))
				}
			}
			if err := dedupeFile(ctx, path, dest, c, topt, log, stdout, stderr); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
		}
		return nil
	},
}

func dedupeFile(ctx context.Context, path, dest string, c *cfgpkg.Global, topt table.Options, log *zap.Logger, stdout, stderr io.Writer) error {
	f, err := table.Load(path, topt)
	if err != nil {
		return err
	}
	for _, w := range f.Warnings {
		fmt.Fprintf(stderr, "⚠ Warning: %s\n", w)
	}
	if !runQuiet {
		fmt.Fprintf(stdout, "Loaded %d rows and %d columns\n", f.Rows(), f.Cols())
	}

	records := table.Records(f)
	plan, err := dedupe.Plan(records, c.LeadingChars)
	if err != nil {
		return err
	}
	if !runQuiet {
		fmt.Fprintln(stdout, report.PlanLine(plan))
	}

	settings := report.Settings{
		Threshold:    c.Threshold,
		LeadingChars: c.LeadingChars,
		Linkage:      c.Linkage,
		Workers:      c.Workers,
	}
	man := report.NewManifest(path, settings)

	opt := dedupe.DefaultOptions()
	opt.Threshold = c.Threshold
	opt.LeadingChars = c.LeadingChars
	opt.Workers = c.Workers
	opt.ProgressEvery = c.ProgressEvery
	opt.Logger = log.Named("dedupe")
	if opt.Linkage, err = dedupe.ParseLinkage(c.Linkage); err != nil {
		return err
	}
	var bar *progress.Bar
	if !runQuiet {
		bar = progress.NewBar(stderr, 100*time.Millisecond)
		opt.Progress = bar
	}

	res, err := dedupe.FindDuplicates(ctx, records, opt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}
	if bar != nil {
		bar.Done()
	}

	anns := annotate.Annotate(f.Rows(), res.Clusters)
	out, err := annotate.Apply(f, anns)
	if err != nil {
		return err
	}
	rep := report.Build(f, out, settings, plan, res, anns, c.PreviewRows)
	if !runQuiet {
		fmt.Fprintln(stdout, report.FoundLine(rep.Summary))
	}

	target := utils.UniquePath(dest)
	if target != dest {
		fmt.Fprintf(stderr, "⚠ Detected existing output, writing to %s to avoid overwrite.\n", filepath.Base(target))
	}
	if err := export.Write(target, out); err != nil {
		return err
	}
	man.Outputs = append(man.Outputs, target)
	if !runQuiet {
		fmt.Fprintf(stdout, "✓ Wrote %s\n", target)
	}

	md := rep.Markdown()
	if runSummary {
		sp := utils.UniquePath(utils.DerivedPath(target, "summary", "md"))
		if err := utils.SafeWriteFile(sp, []byte(md)); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		man.Outputs = append(man.Outputs, sp)
		if !runQuiet {
			fmt.Fprintf(stdout, "✓ Wrote summary %s\n", sp)
		}
	} else if !runQuiet && c.PreviewRows > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprint(stdout, md)
	}
	if runManifest {
		mp := utils.UniquePath(utils.DerivedPath(target, "manifest", "json"))
		man.Finish(rep)
		if err := man.Save(mp); err != nil {
			return err
		}
		if !runQuiet {
			fmt.Fprintf(stdout, "✓ Wrote manifest %s\n", mp)
		}
	}
	return nil
}

// runConfig overlays changed flags on the loaded config and validates the result.
func runConfig(cmd *cobra.Command) (*cfgpkg.Global, error) {
	c, err := effectiveConfig()
	if err != nil {
		return nil, err
	}
	fl := cmd.Flags()
	if fl.Changed("threshold") {
		c.Threshold = runThreshold
	}
	if fl.Changed("leading-chars") {
		c.LeadingChars = runLeadingChars
	}
	if fl.Changed("format") {
		c.OutputFormat = strings.ToLower(strings.TrimSpace(runFormat))
	}
	if fl.Changed("delimiter") {
		c.Delimiter = runDelimiter
		if c.Delimiter == "tab" {
			c.Delimiter = "\t"
		}
	}
	if fl.Changed("max-rows") {
		c.MaxRows = runMaxRows
	}
	if fl.Changed("workers") {
		c.Workers = runWorkers
	}
	if fl.Changed("linkage") {
		c.Linkage = strings.ToLower(strings.TrimSpace(runLinkage))
	}
	if fl.Changed("infer-types") {
		c.InferTypes = runInferTypes
	}
	if fl.Changed("decimal-separator") {
		c.DecimalSeparator = strings.TrimSpace(runDecimalSep)
	}
	if fl.Changed("preview-rows") {
		c.PreviewRows = runPreviewRows
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// warnRecommended flags settings that are valid but outside the tuned range.
func warnRecommended(w io.Writer, c *cfgpkg.Global) {
	if c.Threshold < 0.5 {
		fmt.Fprintf(w, "⚠ Warning: threshold %.2f is below the recommended range 0.50-1.00; expect many false matches\n", c.Threshold)
	}
	if c.LeadingChars > 10 {
		fmt.Fprintf(w, "⚠ Warning: leading characters %d is above the recommended range 1-10; near-duplicates with early typos will be missed\n", c.LeadingChars)
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.AddCommand(runCmd)
	d := cfgpkg.Default()
	runCmd.Flags().Float64Var(&runThreshold, "threshold", d.Threshold, "similarity threshold in [0,1]; rows scoring at or above it are grouped")
	runCmd.Flags().IntVar(&runLeadingChars, "leading-chars", d.LeadingChars, "only compare rows whose text starts with the same N characters")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output file (or directory when processing several files)")
	runCmd.Flags().StringVar(&runFormat, "format", d.OutputFormat, "output format when -o is not a file: csv|tsv|xlsx|sqlite")
	runCmd.Flags().BoolVar(&runSummary, "summary", false, "write a Markdown summary next to the output")
	runCmd.Flags().BoolVar(&runManifest, "manifest", false, "write a JSON run manifest next to the output")
	runCmd.Flags().StringVar(&runSheetName, "sheet-name", "", "XLSX: sheet name to read (overrides --sheet-index)")
	runCmd.Flags().IntVar(&runSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index")
	runCmd.Flags().StringVar(&runDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | '|' | 'tab' (auto-detect if omitted)")
	runCmd.Flags().IntVar(&runMaxRows, "max-rows", 0, "read at most N data rows (0 = all)")
	runCmd.Flags().IntVar(&runWorkers, "workers", d.Workers, "blocks processed in parallel (0 = number of CPUs)")
	runCmd.Flags().StringVar(&runLinkage, "linkage", d.Linkage, "grouping: anchor (members match the first row) or components (transitive)")
	runCmd.Flags().BoolVar(&runInferTypes, "infer-types", false, "CSV: parse numbers and dates instead of keeping text")
	runCmd.Flags().StringVar(&runDecimalSep, "decimal-separator", "", "CSV with --infer-types: decimal separator '.' or ',' (auto-detect if omitted)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "suppress progress and summary output")
	runCmd.Flags().IntVar(&runPreviewRows, "preview-rows", d.PreviewRows, "rows shown in the result preview")
}
