package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/agent"
)

// fakeAgent scripts one session's behavior and records its lifecycle.
type fakeAgent struct {
	mu       sync.Mutex
	resp     agent.Response
	runErr   error
	startErr error
	panics   bool
	onRun    func() // called during RunSession, e.g. to cancel the context

	started int
	closed  int
}

func (a *fakeAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started++
	return a.startErr
}

func (a *fakeAgent) RunSession(ctx context.Context, prompt string) (agent.Response, error) {
	if a.onRun != nil {
		a.onRun()
	}
	if a.panics {
		panic("scripted panic")
	}
	return a.resp, a.runErr
}

func (a *fakeAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

// fakeFactory hands out scripted agents, one per iteration.
type fakeFactory struct {
	mu     sync.Mutex
	agents []*fakeAgent
	script func(iteration int) *fakeAgent
}

func (f *fakeFactory) NewSession() (agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.script(len(f.agents) + 1)
	f.agents = append(f.agents, a)
	return a, nil
}

func (f *fakeFactory) balanced(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.agents {
		if a.closed != 1 {
			t.Errorf("agent %d closed %d times, want exactly 1", i+1, a.closed)
		}
	}
}

// fakePrompts records which prompt variant each iteration received.
type fakePrompts struct {
	mu       sync.Mutex
	variants []string
}

func (p *fakePrompts) InitializerPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.variants = append(p.variants, "initializer")
	return "init prompt"
}

func (p *fakePrompts) ContinuationPrompt(projectDir string, iteration int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.variants = append(p.variants, "continuation")
	return fmt.Sprintf("continue %d", iteration)
}

// fakeStore scripts progress: counts[i] is the snapshot after iteration i+1.
type fakeStore struct {
	mu       sync.Mutex
	exists   bool
	seeded   int
	counts   [][2]int
	queries  int
	countErr error
}

func (s *fakeStore) ChecksArtifactExists(projectDir string) bool { return s.exists }

func (s *fakeStore) SeedInitialArtifacts(projectDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeded++
	return nil
}

func (s *fakeStore) CheckCounts(projectDir string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, 0, s.countErr
	}
	i := s.queries
	s.queries++
	if i >= len(s.counts) {
		i = len(s.counts) - 1
	}
	c := s.counts[i]
	return c[0], c[1], nil
}

func tinyConfig(max int) Config {
	return Config{
		ProjectDir:        "/tmp/proj",
		MaxIterations:     max,
		AutoContinueDelay: time.Millisecond,
		PacingDelay:       time.Millisecond,
	}
}

func TestRunCompletesWhenAllChecksPass(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue, Text: "working"}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{1, 3}, {2, 3}, {3, 3}}}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
	assert.Len(t, factory.agents, 3)
	assert.Equal(t, 0, store.seeded)
	factory.balanced(t)
}

func TestRunSeedsFreshProjectAndUsesInitializerOnce(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: false, counts: [][2]int{{0, 2}, {1, 2}, {2, 2}}}
	prompts := &fakePrompts{}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: prompts, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
	assert.Equal(t, 1, store.seeded)
	assert.Equal(t, []string{"initializer", "continuation", "continuation"}, prompts.variants)
}

func TestRunInitializerNotRetriedAfterErroredFirstSession(t *testing.T) {
	// The first session errors; the second must still get the continuation
	// prompt, never the initializer again.
	factory := &fakeFactory{script: func(iteration int) *fakeAgent {
		if iteration == 1 {
			return &fakeAgent{resp: agent.Response{Status: agent.StatusError, Err: "provider down"}}
		}
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: false, counts: [][2]int{{0, 1}, {1, 1}}}
	prompts := &fakePrompts{}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: prompts, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
	assert.Equal(t, []string{"initializer", "continuation"}, prompts.variants)
	factory.balanced(t)
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{0, 5}}}

	l := New(tinyConfig(3), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, MaxIterationsReached, reason)
	assert.Len(t, factory.agents, 3)
	factory.balanced(t)
}

func TestRunCompletionWinsOverBudgetOnFinalIteration(t *testing.T) {
	// The final allowed iteration completes the project: the reason must be
	// all-checks-passing, not max-iterations.
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{1, 2}, {2, 2}}}

	l := New(tinyConfig(2), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
	assert.Len(t, factory.agents, 2)
}

func TestRunSessionErrorsRetryUntilBudget(t *testing.T) {
	// Every session fails; the loop never crashes and exhausts the budget.
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusError, Err: "boom"}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{0, 4}}}

	l := New(tinyConfig(4), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, MaxIterationsReached, reason)
	assert.Len(t, factory.agents, 4)
	factory.balanced(t)
}

func TestRunSessionPanicRetriesLikeAnError(t *testing.T) {
	factory := &fakeFactory{script: func(iteration int) *fakeAgent {
		if iteration == 1 {
			return &fakeAgent{panics: true}
		}
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{0, 1}, {1, 1}}}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
	factory.balanced(t)
}

func TestRunStartFailureIsSessionError(t *testing.T) {
	factory := &fakeFactory{script: func(iteration int) *fakeAgent {
		if iteration == 1 {
			return &fakeAgent{startErr: errors.New("no sandbox")}
		}
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{0, 1}, {1, 1}}}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
	factory.balanced(t)
}

func TestRunCancelledMidExchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var progressQueriesAtCancel int
	store := &fakeStore{exists: true, counts: [][2]int{{0, 3}}}
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{
			resp: agent.Response{Status: agent.StatusContinue},
			onRun: func() {
				progressQueriesAtCancel = store.queries
				cancel()
			},
		}
	}}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, Cancelled, reason)
	// No progress re-query after the cancelled exchange.
	assert.Equal(t, progressQueriesAtCancel, store.queries)
	require.Len(t, factory.agents, 1)
	factory.balanced(t)
}

func TestRunCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{0, 3}}}

	cfg := tinyConfig(0)
	cfg.AutoContinueDelay = time.Hour // cancellation must cut this short
	l := New(cfg, Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	var reason TerminationReason
	var err error
	go func() {
		reason, err = l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
	require.NoError(t, err)
	assert.Equal(t, Cancelled, reason)
	factory.balanced(t)
}

func TestRunDoneStatusDoesNotStopLoop(t *testing.T) {
	// The agent claims done but checks still fail; only the artifact decides.
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusDone, Text: "all finished"}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{1, 2}, {2, 2}}}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
	assert.Len(t, factory.agents, 2)
}

func TestRunZeroTotalIsNotCompletion(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{0, 0}}}

	l := New(tinyConfig(2), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, MaxIterationsReached, reason)
}

func TestRunUnreadableProgressIsFatal(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, countErr: errors.New("corrupt artifact")}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store})
	_, err := l.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt artifact")
	factory.balanced(t)
}

func TestRunSnapshotCallback(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{1, 3}, {3, 3}}}

	var snapshots [][2]int
	l := New(tinyConfig(0), Deps{
		Agents:  factory,
		Prompts: &fakePrompts{},
		Store:   store,
		OnSnapshot: func(passing, total int) {
			snapshots = append(snapshots, [2]int{passing, total})
		},
	})
	_, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 3}, {3, 3}}, snapshots)
}

// journalSpy records journal calls in order.
type journalSpy struct {
	mu     sync.Mutex
	calls  []string
	reason TerminationReason
	fail   string // method name to fail
}

func (j *journalSpy) record(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, name)
	if j.fail == name {
		return errors.New("journal unavailable")
	}
	return nil
}

func (j *journalSpy) IterationStart(ctx context.Context, n int) error { return j.record("start") }
func (j *journalSpy) IterationOutcome(ctx context.Context, n int, o Outcome) error {
	return j.record("outcome")
}
func (j *journalSpy) Snapshot(ctx context.Context, n, p, total int) error {
	return j.record("snapshot")
}
func (j *journalSpy) Terminated(ctx context.Context, reason TerminationReason) error {
	j.reason = reason
	return j.record("terminated")
}

func TestRunJournalsEveryIterationAndTermination(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{2, 2}}}
	spy := &journalSpy{}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store, Journal: spy})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
	assert.Equal(t, []string{"start", "outcome", "snapshot", "terminated"}, spy.calls)
	assert.Equal(t, AllChecksPassing, spy.reason)
}

func TestRunJournalStartFailureIsFatal(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{2, 2}}}
	spy := &journalSpy{fail: "start"}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store, Journal: spy})
	_, err := l.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal unavailable")
	assert.Empty(t, factory.agents)
}

func TestRunTerminatedRecordFailureIsNotFatal(t *testing.T) {
	factory := &fakeFactory{script: func(int) *fakeAgent {
		return &fakeAgent{resp: agent.Response{Status: agent.StatusContinue}}
	}}
	store := &fakeStore{exists: true, counts: [][2]int{{2, 2}}}
	spy := &journalSpy{fail: "terminated"}

	l := New(tinyConfig(0), Deps{Agents: factory, Prompts: &fakePrompts{}, Store: store, Journal: spy})
	reason, err := l.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, AllChecksPassing, reason)
}
