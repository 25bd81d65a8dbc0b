// Package progress reads and seeds the per-project progress artifacts. The
// checks artifact (feature_list.json) is the single source of truth for
// completion: the project is done when every defined check passes. All reads
// are side-effect-free and safe to repeat within an iteration.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ChecksFileName is the on-disk checks artifact maintained by the agent.
// Its absence marks a fresh project that still needs an initializer session.
const ChecksFileName = "feature_list.json"

// SeededSpecName is the filename the project spec is copied to inside a
// fresh project, so the initializer session can read it.
const SeededSpecName = "app_spec.md"

// Check is one acceptance check recorded in the checks artifact.
type Check struct {
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
	Passing     bool   `json:"passing"`
}

// Store implements the project-store capability consumed by the control
// loop.
type Store struct {
	// SpecPath is an optional application spec copied into fresh projects by
	// SeedInitialArtifacts.
	SpecPath string
}

// NewStore creates a Store. specPath may be empty.
func NewStore(specPath string) *Store {
	return &Store{SpecPath: specPath}
}

func checksPath(projectDir string) string {
	return filepath.Join(projectDir, ChecksFileName)
}

// ChecksArtifactExists reports whether the project already has a checks
// artifact. This is the sole signal distinguishing a fresh project from a
// continuation.
func (s *Store) ChecksArtifactExists(projectDir string) bool {
	_, err := os.Stat(checksPath(projectDir))
	return err == nil
}

// loadChecks reads the checks artifact. A missing artifact is not an error
// and yields no checks; an unreadable or corrupt artifact is an error,
// because continuing with unknown progress would loop forever.
func loadChecks(projectDir string) ([]Check, error) {
	data, err := os.ReadFile(checksPath(projectDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checks artifact: %w", err)
	}

	var checks []Check
	if err := json.Unmarshal(data, &checks); err != nil {
		return nil, fmt.Errorf("parsing checks artifact %s: %w", checksPath(projectDir), err)
	}
	return checks, nil
}

// CheckCounts returns how many checks currently pass out of the total
// defined. (0, 0) means no checks are defined yet and the project is not yet
// completable.
func (s *Store) CheckCounts(projectDir string) (passing, total int, err error) {
	checks, err := loadChecks(projectDir)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range checks {
		if c.Passing {
			passing++
		}
	}
	return passing, len(checks), nil
}

// FailingChecks returns up to limit checks that are not yet passing, used to
// give continuation prompts concrete context. limit <= 0 means no limit.
func (s *Store) FailingChecks(projectDir string, limit int) ([]Check, error) {
	checks, err := loadChecks(projectDir)
	if err != nil {
		return nil, err
	}

	var failing []Check
	for _, c := range checks {
		if c.Passing {
			continue
		}
		failing = append(failing, c)
		if limit > 0 && len(failing) >= limit {
			break
		}
	}
	return failing, nil
}

// SeedInitialArtifacts prepares a fresh project directory: it creates the
// directory tree and copies the application spec in, if one is configured.
// Called exactly once per project, before the initializer session.
func (s *Store) SeedInitialArtifacts(projectDir string) error {
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	if s.SpecPath == "" {
		return nil
	}

	data, err := os.ReadFile(s.SpecPath)
	if err != nil {
		return fmt.Errorf("reading spec file: %w", err)
	}
	dest := filepath.Join(projectDir, SeededSpecName)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("copying spec into project: %w", err)
	}
	return nil
}

// Summary returns a one-line human-readable progress summary.
func (s *Store) Summary(projectDir string) string {
	passing, total, err := s.CheckCounts(projectDir)
	if err != nil {
		return fmt.Sprintf("Progress: unreadable (%v)", err)
	}
	if total == 0 {
		return "Progress: no checks defined yet"
	}
	return fmt.Sprintf("Progress: %d/%d checks passing (%d%%)", passing, total, passing*100/total)
}
