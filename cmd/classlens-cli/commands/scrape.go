package commands

import (
	"log/slog"
	"os"
	"time"

	"classlens-backend/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	scrapeCmd.AddCommand(scrapeAcelyCmd)
	scrapeCmd.AddCommand(scrapeMathAcademyCmd)
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Runs a single scrape of a platform and uploads the results.",
}

var scrapeAcelyCmd = &cobra.Command{
	Use:   "acely",
	Short: "Scrapes student analytics off the Acely admin console.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		svc := newAcelyService(cfg)

		t1 := time.Now()
		summary, err := svc.Run(cmd.Context())
		if err != nil {
			serviceutil.Fatal("scrape failed", err)
		}
		slog.Info("scraping time", "seconds", time.Since(t1).Seconds())

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Email", "Name", "Score", "This Week Accuracy", "Questions"})
		for _, student := range summary.Students {
			var score, accuracy, questions any
			if student.Data.MostRecentScore != nil {
				score = *student.Data.MostRecentScore
			}
			if student.Data.ThisWeekAccuracy != nil {
				accuracy = *student.Data.ThisWeekAccuracy
			}
			if student.Data.QuestionsAnsweredThisWeek != nil {
				questions = *student.Data.QuestionsAnsweredThisWeek
			}
			t.AppendRow(table.Row{student.Email, student.Name, score, accuracy, questions})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()

		slog.Info("scrape complete",
			"scraped", len(summary.Students),
			"uploaded", summary.Uploaded,
			"missing", len(summary.Missing),
			"snapshot", summary.SnapshotPath,
		)
	},
}

var scrapeMathAcademyCmd = &cobra.Command{
	Use:   "mathacademy",
	Short: "Scrapes student progress off the Math Academy teacher dashboard.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		svc := newMathAcademyService(cfg)

		t1 := time.Now()
		summary, err := svc.Run(cmd.Context())
		if err != nil {
			serviceutil.Fatal("scrape failed", err)
		}
		slog.Info("scraping time", "seconds", time.Since(t1).Seconds())

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Student", "Course", "Complete", "Weekly XP"})
		for _, row := range summary.Rows {
			t.AppendRow(table.Row{row.Name, row.CourseName, row.PercentComplete, row.WeeklyXP})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()

		slog.Info("scrape complete",
			"scraped", len(summary.Rows),
			"uploaded", summary.Uploaded,
			"missing", len(summary.Missing),
		)
	},
}
