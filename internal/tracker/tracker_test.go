package tracker

import (
	"testing"
	"time"

	"github.com/skyspot/skyspot/internal/geodesy"
	"github.com/skyspot/skyspot/pkg/logger"
)

// ages backs an AgeFunc with per-aircraft last-heard instants.
type ages struct {
	heard map[string]time.Time
}

func newAges() *ages {
	return &ages{heard: make(map[string]time.Time)}
}

func (a *ages) touch(hex string, now time.Time) {
	a.heard[hex] = now
}

func (a *ages) age(hex string, now time.Time) (time.Duration, bool) {
	t, ok := a.heard[hex]
	if !ok {
		return 0, false
	}
	return now.Sub(t), true
}

func relationAt(distance float64) geodesy.Relation {
	az := 123.0
	alt := 45.0
	return geodesy.Relation{Azimuth: &az, Altitude: &alt, Distance: distance}
}

func TestSelectorAdoptsFirstCandidate(t *testing.T) {
	a := newAges()
	s := NewSelector(60*time.Second, a.age, logger.NewNop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	a.touch("aaaaaa", now)
	aim, ok := s.Consider("aaaaaa", "AAL517", relationAt(500), now)
	if !ok {
		t.Fatal("expected an aim point for the first candidate")
	}
	if aim.Hex != "aaaaaa" || aim.Callsign != "AAL517" {
		t.Fatalf("aim = %+v", aim)
	}
	if aim.DistanceM != 500 {
		t.Fatalf("distance = %v, want 500", aim.DistanceM)
	}
	if target, ok := s.Target(); !ok || target != "aaaaaa" {
		t.Fatalf("target = %q, %v", target, ok)
	}
}

func TestSelectorHysteresis(t *testing.T) {
	a := newAges()
	s := NewSelector(60*time.Second, a.age, logger.NewNop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// A at 500 m becomes the target.
	a.touch("aaaaaa", now)
	if _, ok := s.Consider("aaaaaa", "", relationAt(500), now); !ok {
		t.Fatal("A should be adopted")
	}

	// B at 600 m is farther, A keeps the target and nothing is emitted.
	now = now.Add(time.Second)
	a.touch("bbbbbb", now)
	if aim, ok := s.Consider("bbbbbb", "", relationAt(600), now); ok {
		t.Fatalf("B at 600 m should not displace A at 500 m, got %+v", aim)
	}
	if target, _ := s.Target(); target != "aaaaaa" {
		t.Fatalf("target = %q, want aaaaaa", target)
	}

	// B closes to 100 m and takes over.
	now = now.Add(time.Second)
	a.touch("bbbbbb", now)
	aim, ok := s.Consider("bbbbbb", "", relationAt(100), now)
	if !ok {
		t.Fatal("B at 100 m should displace A at 500 m")
	}
	if aim.Hex != "bbbbbb" {
		t.Fatalf("aim hex = %q, want bbbbbb", aim.Hex)
	}

	// B goes quiet for 61 s; A may now retake the target even though it
	// is farther away.
	now = now.Add(61 * time.Second)
	a.touch("aaaaaa", now)
	aim, ok = s.Consider("aaaaaa", "", relationAt(900), now)
	if !ok {
		t.Fatal("A should retake a stale target")
	}
	if aim.Hex != "aaaaaa" || aim.DistanceM != 900 {
		t.Fatalf("aim = %+v", aim)
	}
}

func TestSelectorRefreshesCurrentTarget(t *testing.T) {
	a := newAges()
	s := NewSelector(60*time.Second, a.age, logger.NewNop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	a.touch("aaaaaa", now)
	s.Consider("aaaaaa", "", relationAt(500), now)

	// The target moving away still emits and updates the displacement
	// threshold.
	now = now.Add(time.Second)
	a.touch("aaaaaa", now)
	if _, ok := s.Consider("aaaaaa", "", relationAt(800), now); !ok {
		t.Fatal("current target should always emit")
	}
	if d, _ := s.LastDistance(); d != 800 {
		t.Fatalf("last distance = %v, want 800", d)
	}

	// B at 700 m now beats the refreshed threshold.
	now = now.Add(time.Second)
	a.touch("bbbbbb", now)
	if _, ok := s.Consider("bbbbbb", "", relationAt(700), now); !ok {
		t.Fatal("B at 700 m should displace A at 800 m")
	}
}

func TestSelectorAdoptsWhenIncumbentForgotten(t *testing.T) {
	a := newAges()
	s := NewSelector(60*time.Second, a.age, logger.NewNop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	a.touch("aaaaaa", now)
	s.Consider("aaaaaa", "", relationAt(100), now)

	// A is evicted from the store entirely. Any candidate may take over.
	delete(a.heard, "aaaaaa")
	now = now.Add(time.Second)
	a.touch("bbbbbb", now)
	if _, ok := s.Consider("bbbbbb", "", relationAt(5000), now); !ok {
		t.Fatal("candidate should replace a forgotten target")
	}
}

func TestSelectorStaleSameTargetRefreshes(t *testing.T) {
	a := newAges()
	s := NewSelector(60*time.Second, a.age, logger.NewNop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	a.touch("aaaaaa", now)
	s.Consider("aaaaaa", "", relationAt(500), now)

	// The target itself reappearing after going stale keeps the target.
	now = now.Add(2 * time.Minute)
	a.touch("aaaaaa", now)
	aim, ok := s.Consider("aaaaaa", "", relationAt(2000), now)
	if !ok {
		t.Fatal("stale target reappearing should emit")
	}
	if aim.Hex != "aaaaaa" {
		t.Fatalf("aim hex = %q, want aaaaaa", aim.Hex)
	}
}

func TestSelectorPassesThroughGeometry(t *testing.T) {
	a := newAges()
	s := NewSelector(60*time.Second, a.age, logger.NewNop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Overhead geometry with no defined azimuth.
	alt := 90.0
	rel := geodesy.Relation{Azimuth: nil, Altitude: &alt, Distance: 10}
	a.touch("aaaaaa", now)
	aim, ok := s.Consider("aaaaaa", "", rel, now)
	if !ok {
		t.Fatal("expected an aim point")
	}
	if aim.AzimuthDeg != nil {
		t.Fatalf("azimuth = %v, want nil", *aim.AzimuthDeg)
	}
	if aim.AltitudeDeg == nil || *aim.AltitudeDeg != 90 {
		t.Fatalf("altitude = %v, want 90", aim.AltitudeDeg)
	}
}
