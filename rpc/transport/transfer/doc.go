// Package transfer implements reliable, chunked request/response exchanges on top of an
// unreliable datagram transport.
//
// Every exchange is a transfer identified by a random 32-bit request id. The initiator
// sends the first chunk of the request together with its total length. The responder pulls
// the remaining chunks with get-chunk packets, runs the request handler once the request is
// complete and pushes the first chunk of the response. The initiator then pulls the rest of
// the response and acknowledges completion.
//
// Packet layout:
//
//	byte 0     flags: bits 0-1 packet type, 0x04 offset is zero, 0x08 request complete,
//	           0x10 response complete (the upper three bits are ignored)
//	bytes 1-4  request id, uint32 little endian
//	byte 5..   varint: total payload length if the offset is zero, the chunk offset otherwise
//	           data packets: the chunk bytes
//	           get-chunk packets: varint chunk length
//
// Packet types are 0 initiator->responder data, 1 responder->initiator get-chunk,
// 2 responder->initiator data and 3 initiator->responder get-chunk. The completion
// acknowledgement is the 5 byte packet with flags 0x1f.
//
// The last packet a transfer is waiting on is resent every ResendInterval. A cleanup sweep
// removes transfers without valid traffic for TransferTimeout (the waiting caller gets
// ErrTimeout) and transfers marked as failed or finished. Malformed or unexpected packets
// never refresh a transfer, so a transfer that only receives garbage decays to the sweep.
package transfer
