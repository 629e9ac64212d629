// Package server assembles the region-triggered sync pipeline and serves it.
//
// A Server owns one store and builds the rest around it:
//
//	location / raw event -> geofence.Monitor -> region.Registry subscription
//	    -> dispatch.Dispatcher -> syncer.Engine -> records.Service -> store
//
// HTTP endpoints:
//
//	GET    /health                  liveness
//	GET    /health/ready            readiness (background work running, store reachable)
//	GET    /api/records             cached records, most recently fetched first
//	GET    /api/records/stream      SSE stream of the full record list
//	GET    /api/records/{token}     one record
//	PATCH  /api/records/{token}     set the bookmark flag
//	DELETE /api/records/{token}     remove a record
//	GET    /api/regions             monitored regions with persisted state
//	PUT    /api/regions/{id}        register or replace a region
//	DELETE /api/regions/{id}        stop monitoring a region
//	GET    /api/regions/{id}/state  persisted occupancy for a region
//	POST   /api/regions/resync      re-sync every occupied region now
//	POST   /api/locations           report a device location
//	POST   /api/events              inject a raw platform event
//
// When auth.jwt_secret is configured, /api routes require a bearer token;
// mutating routes need the write scope.
package server
