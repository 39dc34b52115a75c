// Package httpclient is the outbound HTTP client used by task executors.
//
// It wraps net/http with the resilience package: retryable failures
// (timeouts, connection errors, 429 and 5xx) are retried under a
// RetryPolicy and an optional Breaker stops calling a failing target.
// Requests may pick a proxy and user agent, which is how executors apply a
// workflow's network and politeness settings.
//
//	client, err := httpclient.New(httpclient.Config{
//	    Timeout: 10 * time.Second,
//	    Retry:   &policy,
//	}, log)
//
//	resp, err := client.Do(ctx, httpclient.Request{
//	    Method: http.MethodPost,
//	    Path:   "https://hooks.example.com/in",
//	    Body:   payload,
//	    Proxy:  env.Proxy(),
//	})
package httpclient
