// Package pool bounds concurrent use of scarce automation resources.
//
// A Pool holds two independent classes, browser and page. Each class is a
// counting semaphore with an optional wait queue. Under the "block" strategy
// callers wait for a slot; under "fail" they are queued up to QueueSize and
// rejected with ErrBackpressure beyond that.
//
//	err := p.RunPage(ctx, func(ctx context.Context) error {
//	    return navigate(ctx, page)
//	})
package pool
