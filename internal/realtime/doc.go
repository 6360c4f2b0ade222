// Package realtime tracks live connections and routes events to them.
//
// A Registry owns the set of authenticated connections and their channel
// memberships. Every connection is subscribed to its company channel and
// its user channel on registration; chat channels are joined explicitly.
// The Router resolves channel names to connections and delivers encoded
// frames without waiting on slow peers.
package realtime
