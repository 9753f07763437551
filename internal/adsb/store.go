package adsb

import (
	"errors"
	"fmt"
	"time"

	"github.com/skyspot/skyspot/pkg/logger"
)

// Field identifies a settable aircraft attribute for field-keyed updates.
type Field int

const (
	FieldCallsign Field = iota
	FieldAltitude
	FieldSpeed
	FieldHeading
	// FieldAge is derived from the last update time; applying it is a
	// contract violation.
	FieldAge
)

// String returns the field name for logging.
func (f Field) String() string {
	switch f {
	case FieldCallsign:
		return "callsign"
	case FieldAltitude:
		return "altitude"
	case FieldSpeed:
		return "speed"
	case FieldHeading:
		return "heading"
	case FieldAge:
		return "age"
	default:
		return "unknown"
	}
}

// ErrReadOnlyField is returned when a caller attempts to assign a derived
// field such as age.
var ErrReadOnlyField = errors.New("adsb: field is derived and cannot be assigned")

// Attribute is a field/value pair for ApplyAttribute. Text carries string
// fields (callsign); Value carries numeric fields.
type Attribute struct {
	Field Field
	Text  string
	Value float64
}

// fragmentState tracks which halves of a split position report are pending.
// The merge is attempted exactly when the second-needed parity arrives; a
// failed merge leaves both slots populated for a later attempt with a
// fresher fragment.
type fragmentState int

const (
	fragEmpty fragmentState = iota
	fragHasEven
	fragHasOdd
	fragHasBoth
)

// fragment is one pending half of a split position report with its own
// capture timestamp.
type fragment struct {
	raw []byte
	at  time.Time
}

// Aircraft is the mutable state for one tracked transponder address. All
// mutation goes through methods that take the current time; every mutator
// except the fragment slots stamps the last-update time.
type Aircraft struct {
	hex        string
	callsign   *string
	altitudeM  *float64
	position   *Position
	speedMPH   *float64
	headingDeg *float64
	lastUpdate time.Time

	fragState fragmentState
	even      fragment
	odd       fragment
}

func newAircraft(hex string, now time.Time) *Aircraft {
	return &Aircraft{hex: hex, lastUpdate: now}
}

// Hex returns the aircraft's transponder address.
func (a *Aircraft) Hex() string { return a.hex }

// Callsign returns the callsign, or "" if none has been reported.
func (a *Aircraft) Callsign() string {
	if a.callsign == nil {
		return ""
	}
	return *a.callsign
}

// Position returns the resolved position, or nil if none is known.
func (a *Aircraft) Position() *Position {
	if a.position == nil {
		return nil
	}
	p := *a.position
	return &p
}

// AltitudeM returns the altitude in meters, or nil if unknown.
func (a *Aircraft) AltitudeM() *float64 {
	if a.altitudeM == nil {
		return nil
	}
	v := *a.altitudeM
	return &v
}

// SpeedMPH returns the ground speed in miles per hour, or nil if unknown.
func (a *Aircraft) SpeedMPH() *float64 {
	if a.speedMPH == nil {
		return nil
	}
	v := *a.speedMPH
	return &v
}

// HeadingDeg returns the heading in degrees, or nil if unknown.
func (a *Aircraft) HeadingDeg() *float64 {
	if a.headingDeg == nil {
		return nil
	}
	v := *a.headingDeg
	return &v
}

// Age returns how long ago the aircraft last received a stamping update.
func (a *Aircraft) Age(now time.Time) time.Duration {
	return now.Sub(a.lastUpdate)
}

// LastUpdate returns the last stamping update time.
func (a *Aircraft) LastUpdate() time.Time { return a.lastUpdate }

// Eligible reports whether the aircraft has both a resolved position and an
// altitude, the precondition for target selection.
func (a *Aircraft) Eligible() bool {
	return a.position != nil && a.altitudeM != nil
}

func (a *Aircraft) setCallsign(v string, now time.Time) {
	a.callsign = &v
	a.lastUpdate = now
}

func (a *Aircraft) setAltitudeM(v float64, now time.Time) {
	a.altitudeM = &v
	a.lastUpdate = now
}

func (a *Aircraft) setSpeedMPH(v float64, now time.Time) {
	a.speedMPH = &v
	a.lastUpdate = now
}

func (a *Aircraft) setHeadingDeg(v float64, now time.Time) {
	a.headingDeg = &v
	a.lastUpdate = now
}

// setPosition assigns a resolved position and clears both fragment slots: a
// stale fragment must never merge with a newer one once a position is known.
func (a *Aircraft) setPosition(p Position, now time.Time) {
	a.position = &p
	a.fragState = fragEmpty
	a.even = fragment{}
	a.odd = fragment{}
	a.lastUpdate = now
}

// setFragment stores one half of a split position report. Fragment slots do
// not stamp the last-update time; only a successful merge does, via
// setPosition.
func (a *Aircraft) setFragment(parity Parity, raw []byte, now time.Time) {
	frag := fragment{raw: raw, at: now}

	switch parity {
	case ParityEven:
		a.even = frag
		switch a.fragState {
		case fragEmpty, fragHasEven:
			a.fragState = fragHasEven
		default:
			a.fragState = fragHasBoth
		}
	case ParityOdd:
		a.odd = frag
		switch a.fragState {
		case fragEmpty, fragHasOdd:
			a.fragState = fragHasOdd
		default:
			a.fragState = fragHasBoth
		}
	}
}

// Snapshot returns a read-only copy of the aircraft state.
func (a *Aircraft) Snapshot(now time.Time) AircraftState {
	return AircraftState{
		Hex:        a.hex,
		Callsign:   a.Callsign(),
		Position:   a.Position(),
		AltitudeM:  a.AltitudeM(),
		SpeedMPH:   a.SpeedMPH(),
		HeadingDeg: a.HeadingDeg(),
		AgeSeconds: a.Age(now).Seconds(),
		LastUpdate: a.lastUpdate,
	}
}

// entry pairs an aircraft with its last touch time. Touches (any keyed
// access or mutation) drive LRU eviction; the aircraft's own last-update
// time drives age-based eviction.
type entry struct {
	aircraft *Aircraft
	touched  time.Time
}

// Store holds all live aircraft, bounded by a capacity cap and an age cap.
// Eviction is silent: the data is ephemeral telemetry and absence is a valid
// state, never an error. A single ingestion goroutine performs all mutations.
type Store struct {
	capacity int
	maxAge   time.Duration
	merger   PositionMerger
	entries  map[string]*entry
	logger   *logger.Logger
}

// NewStore creates a store bounded to capacity entries and maxAge entry age.
// Non-positive bounds are configuration contract violations.
func NewStore(capacity int, maxAge time.Duration, merger PositionMerger, log *logger.Logger) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("adsb: invalid store capacity: %d", capacity)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("adsb: invalid max aircraft age: %v", maxAge)
	}

	return &Store{
		capacity: capacity,
		maxAge:   maxAge,
		merger:   merger,
		entries:  make(map[string]*entry),
		logger:   log.Named("store"),
	}, nil
}

// expired is the age-eviction decision as a pure function.
func expired(now, lastUpdate time.Time, maxAge time.Duration) bool {
	return now.Sub(lastUpdate) > maxAge
}

// GetOrCreate returns the aircraft for hex, creating it if absent or if the
// stored entry has aged out. Counts as a touch.
func (s *Store) GetOrCreate(hex string, now time.Time) *Aircraft {
	if e, ok := s.entries[hex]; ok {
		if !expired(now, e.aircraft.lastUpdate, s.maxAge) {
			e.touched = now
			return e.aircraft
		}
		delete(s.entries, hex)
	}

	if len(s.entries) >= s.capacity {
		s.evictOldest()
	}

	ac := newAircraft(hex, now)
	s.entries[hex] = &entry{aircraft: ac, touched: now}
	return ac
}

// Get returns the aircraft for hex. An entry past the age cap is evicted and
// reported as absent. Counts as a touch on hit.
func (s *Store) Get(hex string, now time.Time) (*Aircraft, bool) {
	e, ok := s.entries[hex]
	if !ok {
		return nil, false
	}
	if expired(now, e.aircraft.lastUpdate, s.maxAge) {
		delete(s.entries, hex)
		return nil, false
	}
	e.touched = now
	return e.aircraft, true
}

// Age returns the age of the aircraft for hex, or false if it is absent or
// already past the age cap.
func (s *Store) Age(hex string, now time.Time) (time.Duration, bool) {
	ac, ok := s.Get(hex, now)
	if !ok {
		return 0, false
	}
	return ac.Age(now), true
}

// ApplyAttribute creates the entity if absent and sets one field,
// last-write-wins. Applying the derived age field fails with
// ErrReadOnlyField.
func (s *Store) ApplyAttribute(hex string, attr Attribute, now time.Time) error {
	if attr.Field == FieldAge {
		return ErrReadOnlyField
	}

	ac := s.GetOrCreate(hex, now)

	switch attr.Field {
	case FieldCallsign:
		ac.setCallsign(attr.Text, now)
	case FieldAltitude:
		ac.setAltitudeM(attr.Value, now)
	case FieldSpeed:
		ac.setSpeedMPH(attr.Value, now)
	case FieldHeading:
		ac.setHeadingDeg(attr.Value, now)
	default:
		return fmt.Errorf("adsb: unknown field %d", attr.Field)
	}

	return nil
}

// ApplyPosition assigns an already-resolved position (decoded upstream).
func (s *Store) ApplyPosition(hex string, pos Position, now time.Time) {
	s.GetOrCreate(hex, now).setPosition(pos, now)
}

// ApplyFragment stores one half of a split position report and, when the
// complementary half is pending, attempts the merge. It returns true when
// the merge resolved a position. A failed merge retains both fragments
// unchanged for a future attempt with a fresher fragment.
func (s *Store) ApplyFragment(hex string, parity Parity, raw []byte, now time.Time) bool {
	ac := s.GetOrCreate(hex, now)
	ac.setFragment(parity, raw, now)

	if ac.fragState != fragHasBoth {
		return false
	}

	pos, ok := s.merger.MergePosition(ac.even.raw, ac.even.at, ac.odd.raw, ac.odd.at)
	if !ok {
		s.logger.Debug("Position merge yielded no result",
			logger.String("hex", hex),
			logger.String("parity", parity.String()))
		return false
	}

	ac.setPosition(*pos, now)
	return true
}

// Count returns the number of live (non-expired) aircraft.
func (s *Store) Count(now time.Time) int {
	n := 0
	for _, e := range s.entries {
		if !expired(now, e.aircraft.lastUpdate, s.maxAge) {
			n++
		}
	}
	return n
}

// Snapshots returns read-only copies of all live aircraft. Listing does not
// count as a touch.
func (s *Store) Snapshots(now time.Time) []AircraftState {
	out := make([]AircraftState, 0, len(s.entries))
	for _, e := range s.entries {
		if expired(now, e.aircraft.lastUpdate, s.maxAge) {
			continue
		}
		out = append(out, e.aircraft.Snapshot(now))
	}
	return out
}

// Sweep removes all entries past the age cap. Eviction is lazy on access;
// this exists for callers that want to bound memory between accesses.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	for hex, e := range s.entries {
		if expired(now, e.aircraft.lastUpdate, s.maxAge) {
			delete(s.entries, hex)
			removed++
		}
	}
	return removed
}

// evictOldest drops the least-recently-touched entry.
func (s *Store) evictOldest() {
	var oldestHex string
	var oldest time.Time

	first := true
	for hex, e := range s.entries {
		if first || e.touched.Before(oldest) {
			oldestHex = hex
			oldest = e.touched
			first = false
		}
	}

	if oldestHex != "" {
		delete(s.entries, oldestHex)
		s.logger.Debug("Evicted least-recently-touched aircraft",
			logger.String("hex", oldestHex))
	}
}
