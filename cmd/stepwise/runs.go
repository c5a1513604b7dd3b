package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jfelder/stepwise/internal/state"
	"github.com/jfelder/stepwise/pkg/models"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one archived run in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(args[0])
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")
	runsCmd.AddCommand(runsShowCmd)
}

func openArchive() (*state.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := state.Open(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open run archive: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate run archive: %w", err)
	}
	return db, nil
}

func listRuns() error {
	db, err := openArchive()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no archived runs")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  %2d steps  %s\n",
			run.ID, renderState(run.RunState), run.StepCount, truncateRequest(run.Request))
	}
	return nil
}

func showRun(id string) error {
	db, err := openArchive()
	if err != nil {
		return err
	}
	defer db.Close()

	plan, err := db.GetRun(id)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", plan.ID, renderState(plan.RunState))
	fmt.Printf("request: %s\n", plan.Request)
	if plan.Failure != nil {
		color.Red("failure: %s (%s, step %d): %s",
			plan.Failure.Kind, plan.Failure.Phase, plan.Failure.StepIndex, plan.Failure.Message)
	}

	fmt.Println("\nsteps:")
	for _, step := range plan.Steps {
		fmt.Printf("  %d. [%s] %s (%d attempts)\n",
			step.Index+1, step.Status, step.Description, step.AttemptCount)
	}

	if len(plan.History) > 0 {
		fmt.Println("\nfailed attempts:")
		for _, attempt := range plan.History {
			fmt.Printf("  step %d attempt %d: %s\n",
				attempt.StepIndex+1, attempt.AttemptNumber+1, attempt.Outcome.Diagnostic)
		}
	}

	if plan.Report != "" {
		fmt.Printf("\nreport:\n%s\n", plan.Report)
	}
	return nil
}

func renderState(s models.RunState) string {
	switch s {
	case models.RunStateCompleted:
		return color.GreenString("%-10s", s)
	case models.RunStateAborted:
		return color.RedString("%-10s", s)
	default:
		return color.YellowString("%-10s", s)
	}
}

func truncateRequest(s string) string {
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
