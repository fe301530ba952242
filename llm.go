package researchgpt

import (
	"context"
	"fmt"

	"github.com/teilomillet/gollm"

	"github.com/teilomillet/researchgpt/rag"
)

// LLM is the minimal completion interface the pipeline needs. It is
// satisfied by the gollm adapter and by test fakes.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// gollmLLM adapts a gollm.LLM to the LLM interface.
type gollmLLM struct {
	llm gollm.LLM
}

// NewLLM creates an OpenAI-backed LLM. A low temperature keeps answers
// anchored to the retrieved context.
func NewLLM(apiKey, model string) (LLM, error) {
	llm, err := gollm.NewLLM(
		gollm.SetProvider("openai"),
		gollm.SetModel(model),
		gollm.SetAPIKey(apiKey),
		gollm.SetTemperature(0.1),
		gollm.SetMaxTokens(2048),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm: %w", err)
	}
	return &gollmLLM{llm: llm}, nil
}

func (g *gollmLLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.llm.Generate(ctx, gollm.NewPrompt(prompt))
	if err != nil {
		rag.GlobalLogger.Error("llm generation failed", "error", err)
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	return resp, nil
}
