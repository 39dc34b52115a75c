package executors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kbukum/flowgate/httpclient"
	"github.com/kbukum/flowgate/orchestrator"
	"github.com/kbukum/flowgate/workflow"
)

type webhook struct {
	http *httpclient.Client
}

// deliver POSTs "Body" to "Target URL". Bodies holding JSON go out as
// application/json.
func (w *webhook) deliver(ctx context.Context, n *orchestrator.NodeEnv) error {
	target, err := absoluteURL(n.Input("Target URL"))
	if err != nil {
		return err
	}
	resp, err := w.http.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      target.String(),
		Body:      n.Input("Body"),
		UserAgent: n.Env.UserAgent(),
		Proxy:     n.Env.Proxy(),
		Timeout:   n.Env.Settings.Network.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", target.Host, err)
	}
	n.Log(workflow.LogInfo, fmt.Sprintf("delivered to %s: %d", target.Host, resp.StatusCode))
	return nil
}
