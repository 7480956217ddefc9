package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ragent-ai/ragent/internal/config"
	"github.com/ragent-ai/ragent/internal/knowledge"
	"github.com/ragent-ai/ragent/internal/log"
	"github.com/ragent-ai/ragent/internal/testutil"
)

func pipelineConfig() *config.Config {
	return &config.Config{
		ModelName:         config.DefaultModel,
		EmbedderModel:     config.DefaultEmbedderModel,
		EmbedderDimension: 8,
		RetrievalLimit:    5,
		RetrievalMinScore: 0.5,
		MaxIterations:     3,
		MinConfidence:     0.7,
		MaxMemoryEntries:  50,
	}
}

func TestBuildPipeline(t *testing.T) {
	cfg := pipelineConfig()
	store := knowledge.NewMemStore()
	embedder := testutil.NewMockEmbedder(8)
	client := testutil.NewMockLLM("ok")

	orch, mem, err := buildPipeline(cfg, log.NewNop(), store, embedder, client)
	if err != nil {
		t.Fatalf("buildPipeline() error = %v", err)
	}
	if orch == nil {
		t.Fatal("buildPipeline() returned nil orchestrator")
	}
	if mem == nil {
		t.Fatal("buildPipeline() returned nil memory registry")
	}
}

func TestBuildPipelineExecutes(t *testing.T) {
	cfg := pipelineConfig()
	store := knowledge.NewMemStore()
	embedder := testutil.NewMockEmbedder(8)
	client := testutil.NewMockLLM("plain answer")
	client.AddResponse("decide whether answering requires searching",
		`{"shouldRetrieve": false, "strategy": "none", "reasoning": "greeting", "confidence": 0.9}`)

	orch, _, err := buildPipeline(cfg, log.NewNop(), store, embedder, client)
	if err != nil {
		t.Fatalf("buildPipeline() error = %v", err)
	}

	result, err := orch.Execute(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Text != "plain answer" {
		t.Errorf("Text = %q, want %q", result.Text, "plain answer")
	}
	if len(result.Sources) != 0 {
		t.Errorf("Sources = %d, want 0", len(result.Sources))
	}
}

func TestQualifyModel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare name", "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"already qualified", "googleai/gemini-2.5-pro", "googleai/gemini-2.5-pro"},
		{"other provider kept", "vertexai/gemini-2.5-flash", "vertexai/gemini-2.5-flash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := qualifyModel(tt.in); got != tt.want {
				t.Errorf("qualifyModel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
