// Package config loads the regionsync daemon configuration.
//
// # File Formats
//
// Load reads YAML by default and TOML when the file name ends in .toml.
// ${VAR} references are replaced with environment values before parsing,
// and REGIONSYNC_DB_PATH overrides database.path.
//
// # Example
//
//	server:
//	  http_addr: "127.0.0.1:8088"
//	database:
//	  path: "/var/lib/regionsync/regionsync.db"
//	fetch:
//	  base_url: "http://localhost:9090"
//	  retry:
//	    max_attempts: 3
//	regions:
//	  location_permission: true
//	  static:
//	    - id: storeA
//	      lat: 40.0
//	      lon: -73.0
//	resync:
//	  interval: "2m"
//
// # Defaults
//
//   - fetch.radius_miles: 1.0, fetch.timeout: 10s, fetch.retry.max_attempts: 1 (no retry)
//   - dispatcher.workers: 4, dispatcher.queue_size: 64, dispatcher.dedupe_ttl: 2m
//   - regions.default_radius_meters: 1609, regions.initial_trigger_enter: true
//   - metrics.path: /metrics, logging.level: info
//
// Durations are Go duration strings ("500ms", "2m"). Omitting resync.interval
// disables periodic resync.
package config
