// Package geofence is the in-process spatial trigger subsystem.
//
// A Monitor holds circular regions and the device's last known location.
// UpdateLocation compares the new location with each region and emits one
// Event per direction, grouping every region that crossed its boundary:
//
//	mon := geofence.NewMonitor(geofence.Options{InitialTriggerEnter: true})
//	sub, _ := mon.Subscribe()
//	mon.AddRegions(ctx, []geofence.Region{{ID: "a", Center: c, RadiusMeters: 1609, TriggerOn: geofence.TriggerAll}})
//	mon.UpdateLocation(ctx, loc)
//	ev := <-sub.Events
//
// Deliver injects raw events, including duplicated or errored ones, the way an
// unreliable platform would.
package geofence
