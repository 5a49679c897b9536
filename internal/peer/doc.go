// Package peer binds session engines to a UDP socket.
//
// One Peer owns one socket. It answers negotiation probes, dials other
// peers, and keeps one Conn per remote address. Each Conn serializes its
// engine behind a mutex and ticks it from its own goroutine.
package peer
