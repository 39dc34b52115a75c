package executors

import (
	"errors"
	"fmt"

	"github.com/kbukum/flowgate/httpclient"
	"github.com/kbukum/flowgate/llm"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/orchestrator"
	"github.com/kbukum/flowgate/workflow"
)

// Deps are the clients the built-in executors use.
type Deps struct {
	// HTTP fetches pages and delivers webhooks.
	HTTP *httpclient.Client
	// LLM backs EXTRACT_DATA_WITH_AI. Nil leaves the task unregistered.
	LLM *llm.Client
	Log *logger.Logger
}

// Register adds every built-in executor Deps can support to reg. Tasks
// that need interactive browser control (fill, click, wait) are left to
// externally registered executors.
func Register(reg *orchestrator.Registry, deps Deps) error {
	if deps.HTTP == nil {
		return errors.New("executors: http client is required")
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	deps.Log = deps.Log.WithComponent("executors")

	pages := &pageExecutors{http: deps.HTTP, log: deps.Log}
	builtins := map[string]orchestrator.ExecutorFunc{
		workflow.TaskLaunchBrowser:     pages.launch,
		workflow.TaskNavigateURL:       pages.navigate,
		workflow.TaskPageToHTML:        pages.html,
		workflow.TaskExtractText:       extractText,
		workflow.TaskReadPropertyJSON:  readProperty,
		workflow.TaskAddPropertyJSON:   addProperty,
		workflow.TaskDeliverViaWebhook: (&webhook{http: deps.HTTP}).deliver,
	}
	if deps.LLM != nil {
		builtins[workflow.TaskExtractWithAI] = (&aiExtractor{llm: deps.LLM}).extract
	}

	for taskType, fn := range builtins {
		if err := reg.Register(taskType, fn); err != nil {
			return fmt.Errorf("executors: %w", err)
		}
	}
	return nil
}
