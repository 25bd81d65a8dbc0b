package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Sessions can legitimately run for a long time while the model works
// through a large prompt.
const exchangeTimeout = 30 * time.Minute

// OpenRouter is an agent that performs one chat-completions exchange against
// the OpenRouter API per session.
type OpenRouter struct {
	cfg  SessionConfig
	opts Options
	http *http.Client

	mu         sync.Mutex
	state      int
	sandboxDir string
}

// NewOpenRouter creates an OpenRouter agent handle in the Created state.
func NewOpenRouter(cfg SessionConfig, opts Options) *OpenRouter {
	if opts.BaseURL == "" {
		opts.BaseURL = openRouterBaseURL
	}
	return &OpenRouter{
		cfg:  cfg,
		opts: opts,
		http: &http.Client{Timeout: exchangeTimeout},
	}
}

// Start activates the handle. When sandboxing is enabled it provisions a
// per-session scratch directory under the project's data dir.
func (a *OpenRouter) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateCreated {
		return fmt.Errorf("cannot start agent session: handle is %s", stateName(a.state))
	}

	if a.cfg.Sandbox {
		dir := filepath.Join(a.cfg.ProjectDir, ".cheetah", "sandbox-"+xid.New().String())
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("provisioning sandbox: %w", err)
		}
		a.sandboxDir = dir
		logger.Debug("Provisioned sandbox at %s", dir)
	}

	a.state = stateActive
	return nil
}

// Close releases the handle and removes the session sandbox. Safe to call
// more than once and in any state.
func (a *OpenRouter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == stateClosed {
		return nil
	}
	a.state = stateClosed

	if a.sandboxDir != "" {
		if err := os.RemoveAll(a.sandboxDir); err != nil {
			return fmt.Errorf("removing sandbox: %w", err)
		}
		logger.Debug("Removed sandbox at %s", a.sandboxDir)
	}
	return nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// RunSession performs the single exchange for this session. Provider errors
// (HTTP failures, API error payloads, empty responses) are mapped to an
// error-status Response; a Go error is returned only for misuse of the handle
// or context cancellation.
func (a *OpenRouter) RunSession(ctx context.Context, prompt string) (Response, error) {
	a.mu.Lock()
	if a.state != stateActive {
		state := a.state
		a.mu.Unlock()
		return Response{}, fmt.Errorf("cannot run session: handle is %s", stateName(state))
	}
	a.mu.Unlock()

	body, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return Response{Status: StatusError, Err: fmt.Sprintf("encoding request: %v", err)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{Status: StatusError, Err: fmt.Sprintf("building request: %v", err)}, nil
	}
	req.Header.Set("Authorization", "Bearer "+a.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("Sending exchange to %s (model=%s, prompt=%d bytes)", a.opts.BaseURL, a.cfg.Model, len(prompt))
	resp, err := a.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{Status: StatusError, Err: err.Error()}, nil
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Response{Status: StatusError, Err: fmt.Sprintf("reading response: %v", err)}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return Response{
			Status: StatusError,
			Err:    fmt.Sprintf("openrouter returned %s: %s", resp.Status, truncate(string(payload), 500)),
		}, nil
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Response{Status: StatusError, Err: fmt.Sprintf("decoding response: %v", err)}, nil
	}
	if parsed.Error != nil {
		return Response{Status: StatusError, Err: parsed.Error.Message}, nil
	}
	if len(parsed.Choices) == 0 {
		return Response{Status: StatusError, Err: "openrouter returned no choices"}, nil
	}

	logger.Debug("Exchange complete (finish_reason=%s)", parsed.Choices[0].FinishReason)
	return Response{Status: StatusContinue, Text: parsed.Choices[0].Message.Content}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
