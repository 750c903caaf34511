// Package util provides the low level encoding helpers shared by the transport
// and the replication layer.
//
// The package contains:
//   - varint: base-128 little-endian varints for unsigned 32 bit integers, as used in the
//     packet header of the chunked transfer protocol
//   - timestamp: packing of a (epoch, subEpoch) pair into one integer timestamp and back
//   - wire: append-style writers and a sticky-error reader for length-prefixed fields,
//     used by the message serializer and the store record codec
//   - functions: random request ids and sub epochs
//
// None of the decoders in this package panic on malformed input. Every decoder either
// returns an error or records it in the reader, so adversarial datagrams can be fed to
// them directly.
package util
