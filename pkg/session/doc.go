// Package session maps conversation keys (a chat channel, a websocket
// connection, a CLI run) to agent sessions and evicts sessions that have
// gone idle.
package session
