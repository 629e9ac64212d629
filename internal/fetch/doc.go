// Package fetch implements the remote fetch collaborator: a JSON client for
// GET /ads/nearby?lat=&lon=&radius= that returns the ordered record list and
// the optional server-supplied hash.
//
// Retry is off by default. With Options.MaxAttempts > 1, network errors, 5xx
// and 429 responses are retried with exponential backoff; other 4xx responses
// and undecodable bodies fail on the first attempt.
package fetch
