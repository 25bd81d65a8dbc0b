// Package orchestrator assembles the run-time components for one project
// run: the embedded NATS server, the run journal, the agent factory, the
// prompt source, and the control loop itself.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gosimple/slug"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/winwintangelo/cheetah-autonomous-coding/internal/agent"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/errs"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/hooks"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/journal"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/loop"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/nats"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/progress"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/prompt"
)

// Config holds configuration for the orchestrator.
type Config struct {
	ProjectDir    string // Project root the agent works in
	AgentType     string // Agent implementation (openrouter, opencode)
	Model         string // Model identifier
	APIKey        string // Provider API key
	BaseURL       string // Provider endpoint override (tests)
	SpecPath      string // Application spec copied into fresh projects (optional)
	TemplatePath  string // Custom continuation template (optional)
	MaxIterations int    // Max iterations (0 = infinite)
	DataDir       string // Data directory for NATS storage and logs
	Sandbox       bool   // Provision a scratch sandbox dir per session
}

// Orchestrator manages one project run: embedded NATS, journal, agent
// factory, and the session control loop.
type Orchestrator struct {
	cfg     Config
	ns      *natsserver.Server
	nc      *natsgo.Conn
	journal *journal.Store
	store   *progress.Store
	loop    *loop.Loop
	project string // slugified project token used in journal subjects
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// New creates a new Orchestrator with the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.ProjectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining working directory: %w", err)
		}
		cfg.ProjectDir = wd
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.ProjectDir, ".cheetah")
	}
	if cfg.AgentType == "" {
		cfg.AgentType = agent.DefaultType
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		cfg:     cfg,
		project: slug.Make(filepath.Base(cfg.ProjectDir)),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Project returns the slugified project token used in journal subjects.
func (o *Orchestrator) Project() string {
	return o.project
}

// OpenJournal starts the embedded NATS server and opens the run journal
// without building any session machinery. Used alone for read-only access to
// a project's history; Start calls it as its first step.
func (o *Orchestrator) OpenJournal() error {
	if err := os.MkdirAll(o.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := logger.SetFile(filepath.Join(o.cfg.DataDir, "cheetah.log")); err != nil {
		logger.Warn("Failed to open log file: %v", err)
	}

	logger.Debug("Starting embedded NATS")
	if err := o.startNATS(); err != nil {
		logger.Error("Failed to start NATS: %v", err)
		return fmt.Errorf("starting NATS: %w", err)
	}
	o.store = progress.NewStore(o.cfg.SpecPath)
	return nil
}

// Start initializes all components: NATS, the journal, the agent factory,
// and the control loop. Configuration errors surface here, before any
// session runs.
func (o *Orchestrator) Start() error {
	logger.Info("Starting orchestrator for project '%s'", o.project)

	if err := o.OpenJournal(); err != nil {
		return err
	}

	logger.Debug("Building agent factory (type: %s)", o.cfg.AgentType)
	factory, err := agent.NewFactory(o.cfg.AgentType, agent.SessionConfig{
		ProjectDir: o.cfg.ProjectDir,
		Model:      o.cfg.Model,
		Sandbox:    o.cfg.Sandbox,
	}, agent.Options{
		APIKey:  o.cfg.APIKey,
		BaseURL: o.cfg.BaseURL,
	})
	if err != nil {
		return err
	}

	prompts := prompt.NewSource(o.store, o.cfg.ProjectDir, o.cfg.TemplatePath, o.hookRunner())

	o.loop = loop.New(loop.Config{
		ProjectDir:    o.cfg.ProjectDir,
		MaxIterations: o.cfg.MaxIterations,
	}, loop.Deps{
		Agents:  factory,
		Prompts: prompts,
		Store:   o.store,
		Journal: journal.NewRecorder(o.journal, o.project),
		OnSnapshot: func(passing, total int) {
			if total > 0 {
				fmt.Printf("Progress: %d/%d checks passing\n", passing, total)
			}
		},
	})

	logger.Info("Orchestrator started successfully")
	return nil
}

// Run drives the control loop until it terminates and returns the reason.
func (o *Orchestrator) Run() (loop.TerminationReason, error) {
	o.printBanner()
	return o.loop.Run(o.ctx)
}

// Cancel requests a graceful stop of the current run. The loop finishes its
// in-flight session bookkeeping and terminates with the cancelled reason.
func (o *Orchestrator) Cancel() {
	logger.Info("Cancellation requested for project '%s'", o.project)
	o.cancel()
}

// Stop gracefully shuts down all components. Multiple calls are safe.
func (o *Orchestrator) Stop() error {
	if o.stopped {
		return nil
	}
	o.stopped = true

	logger.Info("Stopping orchestrator for project '%s'", o.project)

	multiErr := &errs.MultiError{}

	if o.cancel != nil {
		o.cancel()
	}

	if err := nats.Shutdown(o.nc, o.ns); err != nil {
		logger.Error("NATS shutdown failed: %v", err)
		multiErr.Append(fmt.Errorf("NATS shutdown: %w", err))
	}
	o.nc = nil
	o.ns = nil

	logger.Info("Orchestrator stopped")
	return multiErr.ErrorOrNil()
}

// History loads the project's run history from the journal.
func (o *Orchestrator) History() (*journal.History, error) {
	return o.journal.LoadHistory(o.ctx, o.project)
}

// ProgressSummary returns a one-line progress summary for the project.
func (o *Orchestrator) ProgressSummary() string {
	if o.store == nil {
		o.store = progress.NewStore(o.cfg.SpecPath)
	}
	return o.store.Summary(o.cfg.ProjectDir)
}

// startNATS starts the embedded server, connects in-process, and sets up the
// journal stream and store.
func (o *Orchestrator) startNATS() error {
	ns, err := nats.StartEmbedded(filepath.Join(o.cfg.DataDir, "nats"))
	if err != nil {
		return err
	}
	o.ns = ns

	nc, err := nats.ConnectInProcess(ns)
	if err != nil {
		ns.Shutdown()
		return fmt.Errorf("connecting to embedded NATS: %w", err)
	}
	o.nc = nc

	js, err := nats.CreateJetStream(nc)
	if err != nil {
		return fmt.Errorf("creating JetStream context: %w", err)
	}
	stream, err := nats.SetupStream(o.ctx, js)
	if err != nil {
		return fmt.Errorf("setting up journal stream: %w", err)
	}
	o.journal = journal.NewStore(js, stream)
	return nil
}

// hookRunner adapts the optional pre-session hook into the prompt source's
// callback. Hook failures never block a session; they are logged and skipped.
func (o *Orchestrator) hookRunner() prompt.HookRunner {
	cfg, err := hooks.LoadConfig(o.cfg.ProjectDir)
	if err != nil {
		logger.Warn("Ignoring unreadable hooks config: %v", err)
		return nil
	}
	if cfg == nil || cfg.Hooks.PreSession == nil {
		return nil
	}

	return func(iteration int) string {
		out, err := hooks.Execute(o.ctx, cfg.Hooks.PreSession, hooks.Variables{
			ProjectDir: o.cfg.ProjectDir,
			Iteration:  strconv.Itoa(iteration),
		})
		if err != nil {
			logger.Warn("Pre-session hook failed: %v", err)
			return ""
		}
		return out
	}
}

// printBanner prints the run header.
func (o *Orchestrator) printBanner() {
	fmt.Printf("=== Project: %s ===\n", o.project)
	fmt.Printf("Directory: %s\n", o.cfg.ProjectDir)
	fmt.Printf("Agent: %s (model: %s)\n", o.cfg.AgentType, o.cfg.Model)
	if o.cfg.MaxIterations > 0 {
		fmt.Printf("Max iterations: %d\n", o.cfg.MaxIterations)
	} else {
		fmt.Println("Max iterations: unlimited")
	}
	fmt.Println(o.store.Summary(o.cfg.ProjectDir))
}
