// Package prompt builds the two prompt variants the control loop chooses
// between: the initializer prompt for a fresh project and the context-aware
// continuation prompt for everything after.
package prompt

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/progress"
)

// Variables holds the values injected into template placeholders.
type Variables struct {
	ProjectDir    string // {{project_dir}}
	Iteration     string // {{iteration}}
	FailingChecks string // {{failing_checks}}
	Hooks         string // {{hooks}}
}

// Render replaces {{variable}} placeholders in template with actual values.
// {{checks_file}} and {{spec_file}} are fixed artifact names.
func Render(template string, vars Variables) string {
	replacements := map[string]string{
		"{{project_dir}}":    vars.ProjectDir,
		"{{iteration}}":      vars.Iteration,
		"{{failing_checks}}": vars.FailingChecks,
		"{{hooks}}":          vars.Hooks,
		"{{checks_file}}":    progress.ChecksFileName,
		"{{spec_file}}":      progress.SeededSpecName,
	}

	result := template
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// HookRunner supplies extra pre-session context injected into the {{hooks}}
// placeholder. Returns an empty string when there is nothing to add.
type HookRunner func(iteration int) string

// Source builds prompts from templates plus current project progress.
type Source struct {
	progress     *progress.Store
	projectDir   string
	templatePath string // optional custom continuation template
	hooks        HookRunner
}

// NewSource creates a prompt source. templatePath overrides the continuation
// template when non-empty; hooks may be nil.
func NewSource(store *progress.Store, projectDir, templatePath string, hooks HookRunner) *Source {
	return &Source{progress: store, projectDir: projectDir, templatePath: templatePath, hooks: hooks}
}

// InitializerPrompt returns the prompt for the one first-run session.
func (s *Source) InitializerPrompt() string {
	return Render(DefaultInitializerTemplate, Variables{
		ProjectDir: s.projectDir,
		Iteration:  "1",
		Hooks:      s.hookOutput(1),
	})
}

// ContinuationPrompt returns the prompt for a continuation session, carrying
// the currently failing checks as context.
func (s *Source) ContinuationPrompt(projectDir string, iteration int) string {
	template := DefaultContinuationTemplate
	if s.templatePath != "" {
		data, err := os.ReadFile(s.templatePath)
		if err != nil {
			logger.Warn("Failed to read custom template %s, using default: %v", s.templatePath, err)
		} else {
			template = string(data)
		}
	}

	return Render(template, Variables{
		ProjectDir:    projectDir,
		Iteration:     strconv.Itoa(iteration),
		FailingChecks: s.failingContext(projectDir),
		Hooks:         s.hookOutput(iteration),
	})
}

// failingContext formats up to 10 failing checks for prompt injection.
func (s *Source) failingContext(projectDir string) string {
	failing, err := s.progress.FailingChecks(projectDir, 10)
	if err != nil {
		logger.Warn("Failed to load failing checks for prompt: %v", err)
		return ""
	}
	if len(failing) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Currently failing checks (work on these):\n")
	for _, c := range failing {
		if c.Category != "" {
			sb.WriteString(fmt.Sprintf("  - [%s] %s\n", c.Category, c.Description))
		} else {
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Description))
		}
	}
	return sb.String()
}

func (s *Source) hookOutput(iteration int) string {
	if s.hooks == nil {
		return ""
	}
	out := strings.TrimSpace(s.hooks(iteration))
	if out == "" {
		return ""
	}
	return "\nAdditional context from pre-session hook:\n" + out + "\n"
}
