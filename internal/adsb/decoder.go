package adsb

import (
	"time"
)

// Parity identifies which half of a split position report a fragment is.
type Parity int

const (
	ParityEven Parity = iota
	ParityOdd
)

// String returns the parity name for logging.
func (p Parity) String() string {
	if p == ParityOdd {
		return "odd"
	}
	return "even"
}

// Decoder turns raw framed transponder messages into structured reports. The
// wire format is opaque to this package: a Decode error means the frame was
// malformed and is dropped silently at the ingestion boundary.
type Decoder interface {
	// Decode parses one raw frame. It returns (nil, nil) for valid frames
	// that carry nothing this system consumes.
	Decode(frame []byte) (*Report, error)

	PositionMerger
}

// PositionMerger combines two complementary position fragments into a
// resolved coordinate. The second return is false when the combination is
// ambiguous or invalid; the caller retains the fragments for a later attempt.
type PositionMerger interface {
	MergePosition(even []byte, evenTime time.Time, odd []byte, oddTime time.Time) (*Position, bool)
}
