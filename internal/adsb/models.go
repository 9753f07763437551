package adsb

import (
	"time"
)

// Unit conversions applied at the ingestion boundary. Everything downstream
// works in meters and miles per hour.
const (
	FeetToMeters  = 0.3048
	KnotsToMPH    = 1.15078
)

// Kind discriminates the decoded report types produced by a Decoder or by an
// already-decoded source.
type Kind int

const (
	// KindIdentity carries a callsign.
	KindIdentity Kind = iota
	// KindVelocity carries ground speed and heading.
	KindVelocity
	// KindPositionEven carries an altitude plus the even half of a split
	// position report.
	KindPositionEven
	// KindPositionOdd carries an altitude plus the odd half of a split
	// position report.
	KindPositionOdd
	// KindPosition carries an altitude plus an already-resolved position
	// (sources that decode upstream, e.g. BaseStation feeds).
	KindPosition
)

// String returns the report kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindVelocity:
		return "velocity"
	case KindPositionEven:
		return "position-even"
	case KindPositionOdd:
		return "position-odd"
	case KindPosition:
		return "position"
	default:
		return "unknown"
	}
}

// Position is a resolved geodetic coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Report is a single decoded update for one aircraft. Only the fields implied
// by Kind are meaningful.
type Report struct {
	Hex  string
	Kind Kind

	Callsign   string    // KindIdentity
	SpeedMPH   float64   // KindVelocity
	HeadingDeg float64   // KindVelocity
	AltitudeM  float64   // position kinds
	Raw        []byte    // KindPositionEven / KindPositionOdd fragment payload
	Position   *Position // KindPosition
	Time       time.Time

	// HasAltitude distinguishes a reported zero altitude from a position
	// message that carried no altitude field at all.
	HasAltitude bool
}

// AircraftState is a read-only snapshot of a tracked aircraft, as exposed by
// the HTTP API and WebSocket feed.
type AircraftState struct {
	Hex        string    `json:"hex"`
	Callsign   string    `json:"callsign,omitempty"`
	Position   *Position `json:"position,omitempty"`
	AltitudeM  *float64  `json:"altitude_m,omitempty"`
	SpeedMPH   *float64  `json:"speed_mph,omitempty"`
	HeadingDeg *float64  `json:"heading_deg,omitempty"`
	AgeSeconds float64   `json:"age_seconds"`
	LastUpdate time.Time `json:"last_update"`
}

// AircraftResponse is the API payload for the aircraft listing.
type AircraftResponse struct {
	Timestamp time.Time       `json:"timestamp"`
	Count     int             `json:"count"`
	Aircraft  []AircraftState `json:"aircraft"`
}
