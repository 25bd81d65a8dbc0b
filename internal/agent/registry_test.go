package agent

import (
	"strings"
	"testing"
)

func TestNewFactoryValidation(t *testing.T) {
	cfg := SessionConfig{ProjectDir: "/tmp/p", Model: "test/model"}

	tests := []struct {
		name      string
		agentType string
		opts      Options
		wantErr   string
	}{
		{
			name:      "openrouter with key",
			agentType: "openrouter",
			opts:      Options{APIKey: "sk-test"},
		},
		{
			name:      "empty type defaults to openrouter",
			agentType: "",
			opts:      Options{APIKey: "sk-test"},
		},
		{
			name:      "openrouter without key",
			agentType: "openrouter",
			wantErr:   "API key",
		},
		{
			name:      "opencode needs no key",
			agentType: "opencode",
		},
		{
			name:      "unknown type",
			agentType: "telepathy",
			wantErr:   "unknown agent type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFactory(tt.agentType, cfg, tt.opts)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFactory() error = %v", err)
			}
			if f == nil {
				t.Fatal("nil factory")
			}
		})
	}
}

func TestUnknownTypeErrorListsAvailable(t *testing.T) {
	_, err := NewFactory("nope", SessionConfig{}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range Types() {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %v should list available type %q", err, name)
		}
	}
}

func TestNewSessionReturnsFreshHandles(t *testing.T) {
	f, err := NewFactory("opencode", SessionConfig{ProjectDir: "/tmp/p"}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	a1, err := f.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	a2, err := f.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	if a1 == a2 {
		t.Error("NewSession() must return a fresh handle every call")
	}
}
