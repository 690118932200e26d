// Package middleware groups the Fiber middleware of the server.
//
// The rayid subpackage tags every request with an X-Ray-ID (reusing a valid
// incoming one) so log lines of one request can be correlated. The auth
// subpackage rejects requests lacking the configured API key, read from the
// X-API-Key header or the api_key query parameter. Register rayid first.
package middleware
