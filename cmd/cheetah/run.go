package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/config"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/orchestrator"
)

var runFlags struct {
	projectDir    string
	maxIterations int
	model         string
	agentType     string
	spec          string
	template      string
	dataDir       string
	sandbox       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the autonomous coding loop against a project",
	Long: `Run agent sessions against a project until every check in
feature_list.json passes, the iteration budget runs out, or the run is
cancelled.

A bare project name (no path separator) is placed under ./generations/.
If the project has no checks file yet, the first session uses the
initializer prompt and the project directory is seeded with the spec.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.projectDir, "project-dir", "p", "", "Project directory (bare names go under ./generations/)")
	runCmd.Flags().IntVarP(&runFlags.maxIterations, "max-iterations", "i", 0, "Max iterations, 0=unlimited")
	runCmd.Flags().StringVarP(&runFlags.model, "model", "m", "", "Model to use (e.g., anthropic/claude-sonnet-4)")
	runCmd.Flags().StringVarP(&runFlags.agentType, "agent", "a", "", "Agent implementation (openrouter, opencode)")
	runCmd.Flags().StringVarP(&runFlags.spec, "spec", "s", "", "Application spec copied into fresh projects")
	runCmd.Flags().StringVarP(&runFlags.template, "template", "t", "", "Custom continuation prompt template")
	runCmd.Flags().StringVar(&runFlags.dataDir, "data-dir", "", "Data directory for journal storage (default: <project>/.cheetah)")
	runCmd.Flags().BoolVar(&runFlags.sandbox, "sandbox", true, "Provision a scratch sandbox dir per session")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags override config only when explicitly set.
	if cmd.Flags().Changed("max-iterations") {
		cfg.Iterations = runFlags.maxIterations
	}
	if runFlags.model != "" {
		cfg.Model = runFlags.model
	}
	if runFlags.agentType != "" {
		cfg.Agent = runFlags.agentType
	}
	if runFlags.spec != "" {
		cfg.Spec = runFlags.spec
	}
	if runFlags.template != "" {
		cfg.Template = runFlags.template
	}
	if cmd.Flags().Changed("sandbox") {
		cfg.Sandbox = runFlags.sandbox
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = runFlags.dataDir
	}

	if cfg.LogLevel != "" {
		if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
			logger.Default.SetLevel(level)
		}
	}

	projectDir, err := resolveProjectDir(runFlags.projectDir)
	if err != nil {
		return err
	}
	if cfg.Iterations < 0 {
		return fmt.Errorf("max iterations must be >= 0 (0 means unlimited)")
	}
	if cfg.Spec != "" {
		if _, err := os.Stat(cfg.Spec); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", cfg.Spec)
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		ProjectDir:    projectDir,
		AgentType:     cfg.Agent,
		Model:         cfg.Model,
		APIKey:        cfg.APIKey,
		SpecPath:      cfg.Spec,
		TemplatePath:  cfg.Template,
		MaxIterations: cfg.Iterations,
		DataDir:       dataDirFor(cfg.DataDir, projectDir),
		Sandbox:       cfg.Sandbox,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	if err := orch.Start(); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}
	defer func() {
		if err := orch.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	// First signal requests graceful cancellation: the loop finishes its
	// bookkeeping and terminates with the cancelled reason. A second signal
	// forces exit.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nCancelling, finishing current session...")
		orch.Cancel()
		<-sigChan
		fmt.Fprintln(os.Stderr, "Forced exit")
		os.Exit(1)
	}()

	reason, err := orch.Run()
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Println(reason.Message())
	return nil
}

// resolveProjectDir resolves the project directory: empty means the current
// directory, and a bare name (no path separator) lands under ./generations/.
func resolveProjectDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determining working directory: %w", err)
		}
		return wd, nil
	}
	if !strings.ContainsRune(dir, os.PathSeparator) && !filepath.IsAbs(dir) {
		dir = filepath.Join("generations", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving project directory: %w", err)
	}
	return abs, nil
}

// dataDirFor keeps a relative data dir anchored to the project.
func dataDirFor(dataDir, projectDir string) string {
	if dataDir == "" {
		return filepath.Join(projectDir, ".cheetah")
	}
	if !filepath.IsAbs(dataDir) {
		return filepath.Join(projectDir, dataDir)
	}
	return dataDir
}
