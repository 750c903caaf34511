package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// Random Identifiers
// --------------------------------------------------------------------------

// GenerateSeed creates a random uint64 from the system CSPRNG
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to the current time, only in the worst case
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// GenerateReqID returns a random 32 bit request id
func GenerateReqID() uint32 {
	return uint32(GenerateSeed())
}

// RandomSubEpoch returns a random sub epoch in [0, SubEpochRange)
func RandomSubEpoch() uint16 {
	return uint16(GenerateSeed() % SubEpochRange)
}
