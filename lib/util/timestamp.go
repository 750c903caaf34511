package util

import (
	"errors"
	"fmt"
)

const (
	// SubEpochRange is the number of distinct sub epochs per epoch
	SubEpochRange = 1000

	// MaxTimestamp is the largest timestamp number. Timestamps stay within 53 bits so they
	// survive any encoding that carries them as a double.
	MaxTimestamp uint64 = 1<<53 - 1

	// MaxEpoch is the largest epoch that can be packed together with every sub epoch
	MaxEpoch = (MaxTimestamp - (SubEpochRange - 1)) / SubEpochRange
)

// ErrTimestampRange is returned when an epoch or sub epoch is out of range
var ErrTimestampRange = errors.New("timestamp out of range")

// Timestamp identifies one write generation of a key. Epoch is the per-key generation
// counter, SubEpoch a random tie-breaker chosen by the write initiator.
type Timestamp struct {
	Epoch    uint64 `json:"epoch"`
	SubEpoch uint16 `json:"subEpoch"`
}

// Number packs the timestamp into epoch*1000 + subEpoch
func (t Timestamp) Number() (uint64, error) {
	if t.SubEpoch >= SubEpochRange {
		return 0, fmt.Errorf("%w: sub epoch %d", ErrTimestampRange, t.SubEpoch)
	}
	if t.Epoch > MaxEpoch {
		return 0, fmt.Errorf("%w: epoch %d", ErrTimestampRange, t.Epoch)
	}
	return t.Epoch*SubEpochRange + uint64(t.SubEpoch), nil
}

// Next returns the timestamp of the following epoch with the given sub epoch
func (t Timestamp) Next(subEpoch uint16) (Timestamp, error) {
	next := Timestamp{Epoch: t.Epoch + 1, SubEpoch: subEpoch}
	if _, err := next.Number(); err != nil {
		return Timestamp{}, err
	}
	return next, nil
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%03d", t.Epoch, t.SubEpoch)
}

// NumberToTimestamp unpacks a timestamp number
func NumberToTimestamp(n uint64) (Timestamp, error) {
	if n > MaxTimestamp {
		return Timestamp{}, fmt.Errorf("%w: %d", ErrTimestampRange, n)
	}
	return Timestamp{
		Epoch:    n / SubEpochRange,
		SubEpoch: uint16(n % SubEpochRange),
	}, nil
}

// EpochOf returns the epoch of a timestamp number
func EpochOf(n uint64) uint64 {
	return n / SubEpochRange
}
