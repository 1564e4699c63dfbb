package omni

import (
	"context"
	"strings"
	"testing"

	"github.com/openomni/omni/llm"
)

type stubModel struct {
	content string
	system  string
}

func (m *stubModel) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	if len(req.Messages) > 0 && req.Messages[0].Role == "system" {
		m.system = req.Messages[0].Content
	}
	return &llm.Response{Content: m.content, FinishReason: "stop"}, nil
}

func (m *stubModel) Model() string { return "stub" }

func TestQuery(t *testing.T) {
	out, err := Query(context.Background(), &stubModel{content: "hello"}, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := Query(context.Background(), nil, "hi"); err == nil {
		t.Fatal("nil client accepted")
	}
}

func TestWithPreset(t *testing.T) {
	model := &stubModel{content: "ok"}
	if _, err := Query(context.Background(), model, "hi", WithPreset("researcher")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(model.system, "research assistant") {
		t.Fatalf("preset prompt not applied: %q", model.system)
	}

	if got := Preset("plumber"); got != "You are a plumber." {
		t.Fatalf("fallback preset wrong: %q", got)
	}
}
