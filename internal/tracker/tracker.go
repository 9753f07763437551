// Package tracker picks which aircraft the pointing device follows. A single
// target is held at a time; candidates only displace it by being closer or by
// the incumbent going stale, which keeps the device from thrashing between
// aircraft at similar ranges.
package tracker

import (
	"time"

	"github.com/skyspot/skyspot/internal/geodesy"
	"github.com/skyspot/skyspot/pkg/logger"
)

// DefaultStaleness is how long a target may go without an update before any
// candidate may displace it.
const DefaultStaleness = 60 * time.Second

// AimPoint is a pointing instruction for the current target. Azimuth or
// Altitude is nil when the geometry leaves it undefined.
type AimPoint struct {
	Hex         string
	Callsign    string
	AzimuthDeg  *float64
	AltitudeDeg *float64
	DistanceM   float64
	Time        time.Time
}

// AgeFunc reports how long ago the given aircraft was last heard from. The
// second return is false when the aircraft is no longer known.
type AgeFunc func(hex string, now time.Time) (time.Duration, bool)

// Selector holds the current target and applies the displacement rules. It
// is not safe for concurrent use; the ingestion loop is its only caller.
type Selector struct {
	staleness time.Duration
	age       AgeFunc
	logger    *logger.Logger

	target       string
	lastDistance float64
}

func NewSelector(staleness time.Duration, age AgeFunc, log *logger.Logger) *Selector {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Selector{
		staleness: staleness,
		age:       age,
		logger:    log.Named("tracker"),
	}
}

// Target returns the current target, if any.
func (s *Selector) Target() (string, bool) {
	return s.target, s.target != ""
}

// LastDistance returns the distance recorded at the target's last emission.
func (s *Selector) LastDistance() (float64, bool) {
	if s.target == "" {
		return 0, false
	}
	return s.lastDistance, true
}

// Consider offers a candidate with a fresh position solution. It returns an
// aim point when the candidate is, or becomes, the target; observations of
// other aircraft return false and change nothing.
func (s *Selector) Consider(hex, callsign string, rel geodesy.Relation, now time.Time) (AimPoint, bool) {
	if s.shouldAdopt(hex, rel.Distance, now) {
		if s.target != hex {
			s.logger.Info("Target changed",
				logger.String("hex", hex),
				logger.String("callsign", callsign),
				logger.Float("distance_m", rel.Distance))
		}
		s.target = hex
	}

	if s.target != hex {
		return AimPoint{}, false
	}

	s.lastDistance = rel.Distance
	return AimPoint{
		Hex:         hex,
		Callsign:    callsign,
		AzimuthDeg:  rel.Azimuth,
		AltitudeDeg: rel.Altitude,
		DistanceM:   rel.Distance,
		Time:        now,
	}, true
}

func (s *Selector) shouldAdopt(hex string, distance float64, now time.Time) bool {
	if s.target == "" {
		return true
	}
	age, ok := s.age(s.target, now)
	if !ok || age > s.staleness {
		return true
	}
	return s.target != hex && distance < s.lastDistance
}
