// Package session is the reliability engine for one established two-party
// session.
//
// Ownership boundary:
// - datagram sequencing, duplicate filtering, ACK/NACK bookkeeping
// - ordered and sequenced delivery per channel
// - split send and reassembly
// - the retransmission table and its resend cadence
//
// The engine never blocks and owns no goroutines or sockets. Callers
// serialize every method call on one Engine and drive Update on a ticker.
package session
