// Package dispatch turns platform transition events into side effects.
//
// For every event:
//
//  1. events whose ID was seen within the dedupe TTL are dropped
//  2. Decode splits the event into (region, kind, location) transitions;
//     malformed or errored events are logged and dropped
//  3. each ENTER runs syncer.OnEnter and then RegionStateStore.MarkEntered(now)
//  4. each EXIT runs RegionStateStore.MarkExited only
//
// Regions within one event are processed one after another. A failure or
// panic in one region is logged and recorded in the Report, and the remaining
// regions still run. Separate events are handled concurrently by Run's fixed
// worker pool, which reads from a single channel so producers feel
// back-pressure when every worker is busy.
package dispatch
