// Package records exposes the cached record set to the rest of the daemon.
//
// Service is the only writer of the record cache. It wraps a store.RecordStore
// and, after every successful mutation, publishes the full ordered list to
// watchers through a Broadcaster:
//
//	svc := records.NewService(st, logger)
//	ch, err := svc.Watch(ctx)
//	for snap := range ch {
//		render(snap)
//	}
//
// Watch channels hold at most one pending snapshot. A slow watcher skips
// intermediate lists but always receives the most recent one.
package records
