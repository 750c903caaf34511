package transfer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ValentinKolb/bKV/lib/util"
)

type packetType byte

const (
	typeDataIR packetType = iota // initiator -> responder data
	typeGetRI                    // responder -> initiator get-chunk
	typeDataRI                   // responder -> initiator data
	typeGetIR                    // initiator -> responder get-chunk
)

const (
	flagTypeMask   byte = 0x03
	flagOffsetZero byte = 0x04
	flagReqDataOk  byte = 0x08
	flagResDataOk  byte = 0x10
	flagMask       byte = 0x1f

	headerLen = 5
)

// the flag combinations that are valid on the wire
const (
	flagsFirstDataIR = byte(typeDataIR) | flagOffsetZero                   // 0x04
	flagsDataIR      = byte(typeDataIR)                                    // 0x00
	flagsFirstDataRI = byte(typeDataRI) | flagOffsetZero | flagReqDataOk   // 0x0e
	flagsDataRI      = byte(typeDataRI) | flagReqDataOk                    // 0x0a
	flagsGetRI       = byte(typeGetRI)                                     // 0x01
	flagsFirstGetRI  = byte(typeGetRI) | flagOffsetZero                    // 0x05
	flagsGetIR       = byte(typeGetIR) | flagReqDataOk                     // 0x0b
	flagsFirstGetIR  = byte(typeGetIR) | flagOffsetZero | flagReqDataOk    // 0x0f
	flagsAckShort    = byte(typeGetIR) | flagReqDataOk | flagResDataOk     // 0x1b
	flagsAck         = flagsAckShort | flagOffsetZero                      // 0x1f
)

var errMalformed = errors.New("malformed packet")

type packetKind int

const (
	kindData packetKind = iota
	kindGet
	kindAck
)

// packet is a decoded datagram. data aliases the input buffer.
type packet struct {
	flags byte
	reqID uint32
	kind  packetKind

	// data packets: total payload length (first chunk) or chunk offset
	first  bool
	total  uint32
	offset uint32
	data   []byte

	// get-chunk packets: requested length
	length uint32
}

func (p *packet) typ() packetType {
	return packetType(p.flags & flagTypeMask)
}

// toResponder reports whether the packet travels initiator -> responder and thus
// belongs to a responder-side transfer
func (p *packet) toResponder() bool {
	t := p.typ()
	return t == typeDataIR || t == typeGetIR
}

// decodePacket parses a datagram. Everything that is not one of the known flag
// combinations with a consistent body is rejected.
func decodePacket(b []byte) (packet, error) {
	if len(b) < headerLen {
		return packet{}, fmt.Errorf("%w: %d bytes", errMalformed, len(b))
	}
	p := packet{
		flags: b[0] & flagMask,
		reqID: binary.LittleEndian.Uint32(b[1:headerLen]),
	}

	switch p.flags {
	case flagsAck, flagsAckShort:
		p.kind = kindAck
		return p, nil

	case flagsFirstDataIR, flagsFirstDataRI, flagsDataIR, flagsDataRI:
		p.kind = kindData
		v, n, err := util.Uvarint32(b[headerLen:])
		if err != nil {
			return packet{}, fmt.Errorf("%w: %v", errMalformed, err)
		}
		p.data = b[headerLen+n:]
		p.first = p.flags&flagOffsetZero != 0
		if p.first {
			p.total = v
			if p.total == 0 {
				return packet{}, fmt.Errorf("%w: zero total length", errMalformed)
			}
		} else {
			p.offset = v
			if p.offset == 0 {
				return packet{}, fmt.Errorf("%w: zero offset without flag", errMalformed)
			}
		}
		if len(p.data) == 0 {
			return packet{}, fmt.Errorf("%w: empty chunk", errMalformed)
		}
		return p, nil

	case flagsGetRI, flagsFirstGetRI, flagsGetIR, flagsFirstGetIR:
		p.kind = kindGet
		offset, n, err := util.Uvarint32(b[headerLen:])
		if err != nil {
			return packet{}, fmt.Errorf("%w: %v", errMalformed, err)
		}
		length, m, err := util.Uvarint32(b[headerLen+n:])
		if err != nil {
			return packet{}, fmt.Errorf("%w: %v", errMalformed, err)
		}
		if headerLen+n+m != len(b) {
			return packet{}, fmt.Errorf("%w: trailing bytes", errMalformed)
		}
		p.first = p.flags&flagOffsetZero != 0
		if p.first != (offset == 0) {
			return packet{}, fmt.Errorf("%w: offset %d does not match flags", errMalformed, offset)
		}
		if length == 0 {
			return packet{}, fmt.Errorf("%w: zero chunk length", errMalformed)
		}
		p.offset, p.length = offset, length
		return p, nil

	default:
		return packet{}, fmt.Errorf("%w: invalid flags 0x%02x", errMalformed, p.flags)
	}
}

func appendHeader(dst []byte, flags byte, reqID uint32) []byte {
	dst = append(dst, flags)
	return binary.LittleEndian.AppendUint32(dst, reqID)
}

// appendData appends a data packet carrying payload[offset:offset+n]
func appendData(dst []byte, typ packetType, reqID uint32, payload []byte, offset, n int) []byte {
	flags := byte(typ)
	if typ == typeDataRI {
		flags |= flagReqDataOk
	}
	if offset == 0 {
		dst = appendHeader(dst, flags|flagOffsetZero, reqID)
		dst = util.AppendUvarint32(dst, uint32(len(payload)))
	} else {
		dst = appendHeader(dst, flags, reqID)
		dst = util.AppendUvarint32(dst, uint32(offset))
	}
	return append(dst, payload[offset:offset+n]...)
}

// appendGet appends a get-chunk packet
func appendGet(dst []byte, typ packetType, reqID uint32, offset, n int) []byte {
	flags := byte(typ)
	if typ == typeGetIR {
		flags |= flagReqDataOk
	}
	if offset == 0 {
		flags |= flagOffsetZero
	}
	dst = appendHeader(dst, flags, reqID)
	dst = util.AppendUvarint32(dst, uint32(offset))
	return util.AppendUvarint32(dst, uint32(n))
}

func appendAck(dst []byte, reqID uint32) []byte {
	return appendHeader(dst, flagsAck, reqID)
}
