// Package region holds the set of monitored regions and is the only component
// that talks to the spatial trigger subsystem.
//
// Registration checks location permission first. Without it Register logs,
// counts the denial and returns nil: delivery is best effort, so a missing
// permission is not an error for the caller.
//
// The Registry owns exactly one subscription handle, created lazily by the
// first Register or Events call and reused for the process lifetime.
package region
