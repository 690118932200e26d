// Package session provides the owning context of a client connection.
//
// A Session serializes every access to the state it owns. Work triggered by a
// request runs inside Lock/Unlock (or Run), hooks registered with
// BeforeResponse run once at EndRoundTrip, and work pushed from background
// goroutines through Access is queued until RunPending drains it on the owner.
package session
