// Command chadsvasc scores patients and prints the stroke-risk reference
// table from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Skufu/chadsvasc/internal/risktable"
	"github.com/Skufu/chadsvasc/internal/score"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chadsvasc",
		Short:         "CHA₂DS₂-VASc stroke risk score for atrial fibrillation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newScoreCmd(), newTableCmd(), newExportCmd())
	return root
}

func newScoreCmd() *cobra.Command {
	var (
		f      score.PatientRiskFactors
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the score from patient risk factors",
		Example: `  chadsvasc score --age 80 --female --chf --stroke-tia
  chadsvasc score --age 70 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("age") {
				return fmt.Errorf("--age is required")
			}
			if err := score.Validate(f); err != nil {
				return err
			}
			return writeScore(cmd.OutOrStdout(), f, asJSON)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.Age, "age", 0, "patient age in years")
	flags.BoolVar(&f.Female, "female", false, "patient is female")
	flags.BoolVar(&f.CHF, "chf", false, "congestive heart failure")
	flags.BoolVar(&f.Hypertension, "hypertension", false, "hypertension")
	flags.BoolVar(&f.StrokeOrTIA, "stroke-tia", false, "prior stroke or transient ischemic attack")
	flags.BoolVar(&f.VascularDisease, "vascular-disease", false, "vascular disease")
	flags.BoolVar(&f.Diabetes, "diabetes", false, "diabetes")
	flags.BoolVar(&asJSON, "json", false, "print JSON with the per-factor breakdown")
	return cmd
}

func writeScore(w io.Writer, f score.PatientRiskFactors, asJSON bool) error {
	n := score.Compute(f)
	if !asJSON {
		_, err := fmt.Fprintln(w, score.FormatScore(n))
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Score     int                      `json:"score"`
		Label     string                   `json:"label"`
		Factors   score.PatientRiskFactors `json:"factors"`
		Breakdown []score.Contribution     `json:"breakdown"`
	}{n, score.FormatScore(n), f, score.Breakdown(f)})
}

func newTableCmd() *cobra.Command {
	var strokeType string

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print annual stroke risk by score",
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := risktable.Default()
			out := cmd.OutOrStdout()

			if !cmd.Flags().Changed("stroke-type") {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "%s\t%s (%%)\t%s (%%)\n", risktable.ScoreColumn, risktable.IschemicColumn, risktable.EmbolicColumn)
				for _, r := range table.Rows() {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Score, r.Ischemic.StringFixed(1), r.Embolic.StringFixed(1))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				_, err := fmt.Fprintln(out, "\n"+risktable.Citation)
				return err
			}

			st, err := risktable.ParseStrokeType(strokeType)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", st.Column())
			for _, r := range table.Rows() {
				fmt.Fprintf(out, "%d\t%s%%\n", r.Score, r.Risk(st).StringFixed(1))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&strokeType, "stroke-type", "", "only print one column: ischemic or embolic")
	return cmd
}

func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the risk table as an .xlsx spreadsheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := risktable.Default().WriteXLSX(file); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "cha2ds2-vasc-stroke-risk.xlsx", "output file")
	return cmd
}
