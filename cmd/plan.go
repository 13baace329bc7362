package cmd

import (
	"fmt"

	cfgpkg "github.com/KaramelBytes/dedupe-cli/internal/config"
	"github.com/KaramelBytes/dedupe-cli/internal/dedupe"
	"github.com/KaramelBytes/dedupe-cli/internal/report"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
	"github.com/spf13/cobra"
)

var (
	planLeadingChars int
	planSheetName    string
	planSheetIndex   int
)

var planCmd = &cobra.Command{
	Use:   "plan <file>",
	Short: "Show how many comparisons a run would perform without scoring anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := effectiveConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("leading-chars") {
			c.LeadingChars = planLeadingChars
			if err := c.Validate(); err != nil {
				return err
			}
		}
		topt, err := tableOptions(c, planSheetName, planSheetIndex)
		if err != nil {
			return err
		}
		f, err := table.Load(args[0], topt)
		if err != nil {
			return err
		}
		st, err := dedupe.Plan(table.Records(f), c.LeadingChars)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Loaded %d rows and %d columns\n", f.Rows(), f.Cols())
		fmt.Fprintln(out, report.PlanLine(st))
		fmt.Fprintf(out, "Blocks: %d (largest %d records)\n", st.Blocks, st.LargestBlock)
		if st.Excluded > 0 {
			fmt.Fprintf(out, "Records too short to block: %d\n", st.Excluded)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().IntVar(&planLeadingChars, "leading-chars", cfgpkg.Default().LeadingChars, "block key length in characters")
	planCmd.Flags().StringVar(&planSheetName, "sheet-name", "", "XLSX: sheet name to read")
	planCmd.Flags().IntVar(&planSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index")
}
