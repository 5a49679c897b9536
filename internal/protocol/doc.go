// Package protocol owns the wire contract shared by the reliability engine.
//
// Ownership boundary:
// - packet identifiers, magic marker, limits
// - error taxonomy used across codec, session and handshake packages
//
// Subpackages:
// - cursor: primitive binary read/write
// - reliability: delivery-guarantee catalog
// - message: encapsulated message codec
// - split: fragmentation and reassembly
// - frame: datagram frame batching
// - ack: ACK/NACK record sets
// - session: per-connection reliability engine
// - handshake: MTU negotiation
package protocol
