// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/ibenthos/geotag/geotag"
	"github.com/ibenthos/geotag/ledger"
	"github.com/ibenthos/geotag/spatial"
	"github.com/ibenthos/geotag/utils/textutils"
	"github.com/spf13/cobra"
)

var reportOptions = struct {
	ledger string
	limit  int
}{}

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "List recorded runs, or the photos of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		db, repo, err := ledger.Open(reportOptions.ledger)
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 0 {
			return printRuns(repo)
		}

		return printRun(repo, args[0])
	},
}

func printRuns(repo ledger.Repository) error {
	runs, err := repo.ListRuns(reportOptions.limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	a, b, c := strings.Repeat("─", 36), strings.Repeat("─", 19), strings.Repeat("─", 40)
	fmt.Printf("╭─%s─┬─%s─┬─%-10s─┬─%-7s─┬─%s╮\n", a, b, strings.Repeat("─", 10), strings.Repeat("─", 7), c)
	fmt.Printf("│ %-36s │ %-19s │ %-10s │ %7s │ %-40s│\n", "Run", "Started", "State", "Tagged", "Import directory")
	fmt.Printf("├─%s─┼─%s─┼─%-10s─┼─%-7s─┼─%s┤\n", a, b, strings.Repeat("─", 10), strings.Repeat("─", 7), c)

	for _, run := range runs {
		fmt.Printf("│ %-36s │ %-19s │ %-10s │ %3d/%-3d │ %-40s│\n",
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.State,
			run.Counts.Success,
			run.Counts.Total,
			truncate(run.ImportDir, 40),
		)
	}

	fmt.Printf("╰─%s─┴─%s─┴─%-10s─┴─%-7s─┴─%s╯\n", a, b, strings.Repeat("─", 10), strings.Repeat("─", 7), c)

	return nil
}

func printRun(repo ledger.Repository, id string) error {
	run, err := repo.GetRun(id)
	if err != nil {
		return err
	}

	photos, err := repo.RunPhotos(id)
	if err != nil {
		return fmt.Errorf("listing photos of %s: %w", id, err)
	}

	fmt.Printf("Run %s (%s)\n", run.ID, run.State)
	fmt.Printf("  import:   %s\n  track:    %s\n", run.ImportDir, run.GPXPath)
	fmt.Printf("  started:  %s, took %s\n", run.StartedAt.Local().Format(time.DateTime), run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	fmt.Printf("  drift:    %s\n", run.Drift)
	fmt.Printf("  result:   %s\n", formatCounts(run.Counts))

	if run.Error != "" {
		fmt.Printf("  error:    %s\n", run.Error)
	}

	if run.ExportError != "" {
		fmt.Printf("  export:   %s\n", run.ExportError)
	}

	fmt.Println()

	for _, p := range photos {
		where := p.Reason
		if p.Position != nil {
			where = p.Position.Point.String()
			if len(p.Cells) > 0 {
				where += " " + spatial.CellString(int64(p.Cells[0]))
			}
		}

		fmt.Printf("%-26s %-50s %s\n", p.Status, p.RelPath, where)
	}

	return nil
}

func formatCounts(c geotag.Counts) string {
	return fmt.Sprintf("%s geotagged, %s skipped, %s failed, %s not processed of %s",
		textutils.FormatInt(int64(c.Success)),
		textutils.FormatInt(int64(c.Skipped)),
		textutils.FormatInt(int64(c.Failed)),
		textutils.FormatInt(int64(c.NotProcessed)),
		textutils.FormatInt(int64(c.Total)))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return "…" + string(r[len(r)-n+1:])
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportOptions.ledger, "ledger", "geotag.duckdb", "DuckDB file where runs are recorded")
	reportCmd.Flags().IntVar(&reportOptions.limit, "limit", 20, "Number of runs listed")
}
