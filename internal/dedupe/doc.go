// Package dedupe provides a TTL cache of event IDs.
//
// The platform may deliver the same transition event more than once. The
// dispatcher calls CheckAndMark with the event ID before decoding and drops
// the event when it reports a duplicate:
//
//	seen := dedupe.New(dedupe.Options{TTL: 2 * time.Minute, MaxSize: 1024})
//	defer seen.Close()
//	if seen.CheckAndMark(ev.ID) {
//		return // duplicate
//	}
//
// The cache is bounded: when full, the key marked longest ago is evicted.
package dedupe
