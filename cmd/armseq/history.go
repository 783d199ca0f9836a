package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armseq/pkg/journal"
)

type HistoryCommand struct {
	Limit int `short:"n" long:"limit" default:"20" description:"Number of runs to show"`
}

func (c *HistoryCommand) Execute(args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Journal.Path == "" {
		return errors.New("journal.path is not set; runs are not being recorded")
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer store.Close()

	runs, err := store.List(context.Background(), c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		outcome := r.Outcome
		if outcome == "" {
			outcome = "unfinished"
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Program,
			r.Endpoint,
			outcome,
			fmt.Sprintf("%d/%d", r.Frames, r.TotalSteps),
			r.Duration().Round(time.Millisecond).String(),
			r.Error,
		})
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Started", "Program", "Endpoint", "Outcome", "Frames", "Duration", "Error").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Bold(true).Foreground(lipgloss.Color("12"))
			}
			if col == 3 {
				switch runs[row].Outcome {
				case journal.OutcomeCompleted:
					return cellStyle.Foreground(lipgloss.Color("10"))
				case journal.OutcomeInterrupted:
					return cellStyle.Foreground(lipgloss.Color("11"))
				default:
					return cellStyle.Foreground(lipgloss.Color("9"))
				}
			}
			return cellStyle
		})
	fmt.Println(t.Render())
	return nil
}
