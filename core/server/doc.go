// Package server holds the HTTP server configuration and constants.
//
// The start command builds the fiber application; this package defines the
// settings it reads: the port, the API key, the default batch encoding (JSON
// or CBOR frames) and how long idle grid sessions are kept.
package server
