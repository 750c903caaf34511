package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	headerSize = 12

	// maxFrameSize bounds the payload a peer accepts in one frame
	maxFrameSize = 64 << 20
)

// writeFrame writes one frame to the connection:
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds the limit of %d", len(data), maxFrameSize)
	}
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint64(header[:8], requestID)
	binary.BigEndian.PutUint32(header[8:], uint32(len(data)))

	// header and payload in one write
	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame from the connection. buf is used for the payload if it is
// large enough, otherwise a new buffer is allocated.
func readFrame(conn net.Conn, buf []byte) (uint64, []byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return 0, nil, err
	}

	requestID := binary.BigEndian.Uint64(header[:8])
	length := binary.BigEndian.Uint32(header[8:])
	if length > maxFrameSize {
		return requestID, nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d", length, maxFrameSize)
	}
	if length == 0 {
		return requestID, []byte{}, nil
	}

	if len(buf) < int(length) {
		buf = make([]byte, length)
	}
	if _, err := io.ReadFull(conn, buf[:length]); err != nil {
		return requestID, nil, err
	}
	return requestID, buf[:length], nil
}
