package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
)

// Opencode is an agent that runs one exchange by spawning the opencode CLI as
// a subprocess, sending the prompt on stdin and parsing JSON events from
// stdout.
type Opencode struct {
	cfg SessionConfig

	mu    sync.Mutex
	state int
}

// NewOpencode creates an opencode agent handle in the Created state.
func NewOpencode(cfg SessionConfig) *Opencode {
	return &Opencode{cfg: cfg}
}

// Start activates the handle.
func (a *Opencode) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != stateCreated {
		return fmt.Errorf("cannot start agent session: handle is %s", stateName(a.state))
	}
	a.state = stateActive
	return nil
}

// Close releases the handle. Safe to call more than once.
func (a *Opencode) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = stateClosed
	return nil
}

// opencodeEvent mirrors the JSON event lines emitted by opencode run
// --format json.
type opencodeEvent struct {
	Type string `json:"type"`
	Part *struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Tool string `json:"tool"`
	} `json:"part"`
	Error *struct {
		Name string `json:"name"`
		Data *struct {
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

// RunSession spawns the opencode subprocess for one exchange. Subprocess
// failures and error events are mapped to an error-status Response; a Go
// error is returned only for handle misuse or context cancellation.
func (a *Opencode) RunSession(ctx context.Context, prompt string) (Response, error) {
	a.mu.Lock()
	if a.state != stateActive {
		state := a.state
		a.mu.Unlock()
		return Response{}, fmt.Errorf("cannot run session: handle is %s", stateName(state))
	}
	a.mu.Unlock()

	args := []string{"run", "--format", "json"}
	if a.cfg.Model != "" {
		args = append(args, "--model", a.cfg.Model)
	}

	cmd := exec.CommandContext(ctx, "opencode", args...)
	cmd.Dir = a.cfg.ProjectDir
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Response{Status: StatusError, Err: fmt.Sprintf("creating stdin pipe: %v", err)}, nil
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Response{Status: StatusError, Err: fmt.Sprintf("creating stdout pipe: %v", err)}, nil
	}

	logger.Debug("Starting opencode subprocess in %s", a.cfg.ProjectDir)
	if err := cmd.Start(); err != nil {
		return Response{Status: StatusError, Err: fmt.Sprintf("starting opencode: %v", err)}, nil
	}

	if _, err := io.WriteString(stdin, prompt); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return Response{Status: StatusError, Err: fmt.Sprintf("writing prompt: %v", err)}, nil
	}
	stdin.Close()

	var text strings.Builder
	var errMsg string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		var event opencodeEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			logger.Warn("Skipping malformed opencode event: %v", err)
			continue
		}

		switch event.Type {
		case "text":
			if event.Part != nil {
				text.WriteString(event.Part.Text)
			}
		case "tool_use":
			if event.Part != nil && event.Part.Tool != "" {
				logger.Debug("Tool use: %s", event.Part.Tool)
			}
		case "error":
			if event.Error != nil {
				errMsg = event.Error.Name
				if event.Error.Data != nil && event.Error.Data.Message != "" {
					errMsg = event.Error.Data.Message
				}
			}
		default:
			logger.Debug("Ignoring opencode event type: %s", event.Type)
		}
	}

	if ctx.Err() != nil {
		_ = cmd.Wait()
		return Response{}, ctx.Err()
	}

	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return Response{Status: StatusError, Err: fmt.Sprintf("reading opencode output: %v", err)}, nil
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{Status: StatusError, Err: fmt.Sprintf("opencode exited: %v", err)}, nil
	}

	if errMsg != "" {
		return Response{Status: StatusError, Err: errMsg}, nil
	}
	return Response{Status: StatusContinue, Text: text.String()}, nil
}
