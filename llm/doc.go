// Package llm is the completion client behind AI extraction tasks.
//
// A [Dialect] maps [CompletionRequest] and [CompletionResponse] to one
// provider's HTTP format; OpenAI-compatible and Ollama dialects are built
// in and more can be added with [RegisterDialect]. [Client] sends requests
// through httpclient, so provider calls get the same retry handling as
// other outbound traffic. The API key is passed per call because it comes
// from the user's credential, not from process configuration.
//
//	client, err := llm.New(llm.Config{Dialect: "openai", Model: "gpt-4o-mini"}, log)
//
//	resp, err := client.Complete(ctx, apiKey, llm.CompletionRequest{
//	    SystemPrompt: "Extract the fields as JSON.",
//	    Messages:     []llm.Message{{Role: "user", Content: html}},
//	    JSON:         true,
//	})
package llm
