package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/config"
)

var initFlags struct {
	force bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a project-local cheetah.yml with the current defaults",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initFlags.force, "force", "f", false, "Overwrite an existing cheetah.yml")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.ProjectPath()
	if _, err := os.Stat(path); err == nil && !initFlags.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.WriteProject(cfg); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set OPENROUTER_API_KEY (or CHEETAH_API_KEY) before running; the key is never written to disk.")
	return nil
}
