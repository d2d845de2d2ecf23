// Package wire implements the coordinator/worker control protocol: a
// tagged-union Command type covering the handshake, job dispatch,
// result reporting, heartbeat, and disconnect messages, and a codec
// that encodes/decodes them using protobuf's wire primitives without a
// generated schema.
//
// The heartbeat tag is always named "HEARTBEAT". Earlier drafts of
// this protocol spelled it "HEATBEAT" in one place and asserted
// "HEARTBEAT" in another; this implementation picks the correctly
// spelled name and uses it consistently in Tag.String and in Go
// identifiers. On the wire every tag, this one included, is encoded as
// its integer Tag value, not as a string.
package wire
