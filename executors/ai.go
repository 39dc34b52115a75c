package executors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kbukum/flowgate/llm"
	"github.com/kbukum/flowgate/orchestrator"
	"github.com/kbukum/flowgate/workflow"
)

const extractionPrompt = "You are a webscraper helper. Extract data from the given content " +
	"as instructed and answer with a single JSON value only, no explanation. " +
	"If nothing can be extracted, answer with an empty JSON array."

type aiExtractor struct {
	llm *llm.Client
}

// extract asks the model to pull "Prompt" out of "Content". "Credentials"
// holds the decrypted provider API key.
func (a *aiExtractor) extract(ctx context.Context, n *orchestrator.NodeEnv) error {
	content := n.Input("Content")
	prompt := n.Input("Prompt")
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt is empty")
	}

	resp, err := a.llm.Complete(ctx, n.Input("Credentials"), llm.CompletionRequest{
		SystemPrompt: extractionPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: content},
			{Role: "user", Content: prompt},
		},
		Temperature: 1,
		JSON:        true,
	})
	if err != nil {
		return err
	}

	out := strings.TrimSpace(resp.Content)
	if !json.Valid([]byte(out)) {
		return fmt.Errorf("model answered with invalid JSON (%d bytes)", len(out))
	}
	n.Log(workflow.LogInfo, fmt.Sprintf("used %d tokens (%s)", resp.Usage.TotalTokens, resp.Model))
	n.SetOutput("Extracted data", out)
	return nil
}
