// Package handshake negotiates the MTU and exchanges GUIDs before a session
// engine exists.
//
// The initiator side (Negotiator) probes a descending list of candidate MTU
// sizes with OpenConnectionRequest1, then confirms with
// OpenConnectionRequest2. The answering side (Responder) replies and applies
// an admission policy. Neither side owns a socket; both consume and produce
// raw datagrams.
package handshake
