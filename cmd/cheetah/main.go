package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cheetah",
	Short: "Autonomous AI coding loop that runs agent sessions until every check passes",
	Long: `cheetah drives an AI coding agent against a project in a loop: each
iteration runs one fresh agent session, then re-reads the project's check
list (feature_list.json) to decide whether to continue, retry, or stop.

The run ends when all checks pass, the iteration budget runs out, or the
run is cancelled with Ctrl-C. Every iteration is recorded in an embedded
NATS JetStream journal under the project's data directory.`,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
}
