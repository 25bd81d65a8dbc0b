package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/config"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/orchestrator"
)

var statusFlags struct {
	projectDir string
	dataDir    string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a project's check progress and run history",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFlags.projectDir, "project-dir", "p", "", "Project directory (bare names go under ./generations/)")
	statusCmd.Flags().StringVar(&statusFlags.dataDir, "data-dir", "", "Data directory for journal storage (default: <project>/.cheetah)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = statusFlags.dataDir
	}

	projectDir, err := resolveProjectDir(statusFlags.projectDir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return fmt.Errorf("project directory not found: %s", projectDir)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		ProjectDir: projectDir,
		DataDir:    dataDirFor(cfg.DataDir, projectDir),
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	if err := orch.OpenJournal(); err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() { _ = orch.Stop() }()

	fmt.Printf("=== Project: %s ===\n", orch.Project())
	fmt.Printf("Directory: %s\n", projectDir)
	fmt.Println(orch.ProgressSummary())

	history, err := orch.History()
	if err != nil {
		return fmt.Errorf("loading run history: %w", err)
	}
	if len(history.Iterations) == 0 {
		fmt.Println("No recorded iterations yet.")
		return nil
	}

	fmt.Printf("\nIterations (%d):\n", len(history.Iterations))
	for _, rec := range history.Iterations {
		line := fmt.Sprintf("  #%d  %s", rec.Number, rec.StartedAt.Format(time.RFC3339))
		if rec.Outcome != "" {
			line += "  " + rec.Outcome
		}
		if rec.Total > 0 {
			line += fmt.Sprintf("  %d/%d passing", rec.Passing, rec.Total)
		}
		if rec.Error != "" {
			line += "  (" + rec.Error + ")"
		}
		fmt.Println(line)
	}
	if history.Terminated != "" {
		fmt.Printf("\nLast run ended: %s\n", history.Terminated)
	}
	return nil
}
