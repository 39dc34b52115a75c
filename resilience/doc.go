// Package resilience provides the retry policy applied to node invocations
// and the breaker that lets shared-backend clients degrade to local state.
//
//	err := resilience.Do(ctx, policy, func(attempt int) error {
//	    return executor.Execute(ctx, env)
//	}, nil, nil)
package resilience
