package agent

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultType is the agent type used when none is configured.
const DefaultType = "openrouter"

// Options carries provider settings that sit outside SessionConfig, such as
// credentials and endpoint overrides.
type Options struct {
	APIKey  string // Provider API key (required for openrouter)
	BaseURL string // Endpoint override, mainly for tests
}

type constructor func(cfg SessionConfig, opts Options) Agent

var registry = map[string]constructor{
	"openrouter": func(cfg SessionConfig, opts Options) Agent {
		return NewOpenRouter(cfg, opts)
	},
	"opencode": func(cfg SessionConfig, _ Options) Agent {
		return NewOpencode(cfg)
	},
}

// Types returns the registered agent type names, sorted.
func Types() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Factory produces a fresh agent handle for each loop iteration. All
// configuration errors (unknown type, missing credential) surface here,
// before the loop ever starts.
type Factory struct {
	build constructor
	cfg   SessionConfig
	opts  Options
}

// NewFactory validates the agent type and its required options.
func NewFactory(agentType string, cfg SessionConfig, opts Options) (*Factory, error) {
	if agentType == "" {
		agentType = DefaultType
	}

	build, ok := registry[agentType]
	if !ok {
		return nil, fmt.Errorf("unknown agent type %q (available: %s)",
			agentType, strings.Join(Types(), ", "))
	}

	if agentType == "openrouter" && opts.APIKey == "" {
		return nil, fmt.Errorf("openrouter agent requires an API key: set OPENROUTER_API_KEY or api_key in cheetah.yml")
	}

	return &Factory{build: build, cfg: cfg, opts: opts}, nil
}

// NewSession creates a fresh agent handle in the Created state.
func (f *Factory) NewSession() (Agent, error) {
	return f.build(f.cfg, f.opts), nil
}
