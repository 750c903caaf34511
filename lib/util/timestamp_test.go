package util

import (
	"errors"
	"testing"
)

// TestTimestampRoundTrip tests that packing and unpacking a timestamp is lossless
func TestTimestampRoundTrip(t *testing.T) {
	epochs := []uint64{0, 1, 2, 999, 1000, 123456789, MaxEpoch - 1, MaxEpoch}
	subEpochs := []uint16{0, 1, 500, 998, 999}

	for _, epoch := range epochs {
		for _, sub := range subEpochs {
			ts := Timestamp{Epoch: epoch, SubEpoch: sub}
			n, err := ts.Number()
			if err != nil {
				t.Fatalf("Failed to pack %v: %v", ts, err)
			}
			if n != epoch*1000+uint64(sub) {
				t.Errorf("Packed %v to %d, expected %d", ts, n, epoch*1000+uint64(sub))
			}
			back, err := NumberToTimestamp(n)
			if err != nil {
				t.Fatalf("Failed to unpack %d: %v", n, err)
			}
			if back != ts {
				t.Errorf("Round trip of %v returned %v", ts, back)
			}
			if EpochOf(n) != epoch {
				t.Errorf("EpochOf(%d) = %d, expected %d", n, EpochOf(n), epoch)
			}
		}
	}
}

// TestTimestampRange tests rejection of out of range values
func TestTimestampRange(t *testing.T) {
	if _, err := (Timestamp{Epoch: 1, SubEpoch: 1000}).Number(); !errors.Is(err, ErrTimestampRange) {
		t.Errorf("Expected ErrTimestampRange for sub epoch 1000, got %v", err)
	}
	if _, err := (Timestamp{Epoch: MaxEpoch + 1}).Number(); !errors.Is(err, ErrTimestampRange) {
		t.Errorf("Expected ErrTimestampRange for epoch %d, got %v", MaxEpoch+1, err)
	}
	if _, err := NumberToTimestamp(MaxTimestamp + 1); !errors.Is(err, ErrTimestampRange) {
		t.Errorf("Expected ErrTimestampRange for number %d, got %v", MaxTimestamp+1, err)
	}
	if _, err := (Timestamp{Epoch: MaxEpoch}).Next(0); !errors.Is(err, ErrTimestampRange) {
		t.Errorf("Expected ErrTimestampRange when advancing past the max epoch, got %v", err)
	}
}

// TestTimestampNext tests advancing to the next epoch
func TestTimestampNext(t *testing.T) {
	next, err := Timestamp{Epoch: 4, SubEpoch: 17}.Next(900)
	if err != nil {
		t.Fatal(err)
	}
	if next != (Timestamp{Epoch: 5, SubEpoch: 900}) {
		t.Errorf("Unexpected next timestamp %v", next)
	}
	if next.String() != "5.900" {
		t.Errorf("Unexpected string %q", next.String())
	}
}

// TestRandomSubEpoch tests that random sub epochs stay in range
func TestRandomSubEpoch(t *testing.T) {
	for i := 0; i < 10000; i++ {
		if s := RandomSubEpoch(); s >= SubEpochRange {
			t.Fatalf("Sub epoch %d out of range", s)
		}
	}
}
