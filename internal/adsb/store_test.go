package adsb

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/skyspot/skyspot/pkg/logger"
)

// stubMerger is a PositionMerger with canned results, standing in for the
// wire-level decoder.
type stubMerger struct {
	pos   *Position
	ok    bool
	calls int
}

func (m *stubMerger) MergePosition(even []byte, evenTime time.Time, odd []byte, oddTime time.Time) (*Position, bool) {
	m.calls++
	if !m.ok {
		return nil, false
	}
	p := *m.pos
	return &p, true
}

func newTestStore(t *testing.T, capacity int, maxAge time.Duration, merger PositionMerger) *Store {
	t.Helper()
	if merger == nil {
		merger = &stubMerger{}
	}
	s, err := NewStore(capacity, maxAge, merger, logger.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestNewStoreRejectsInvalidBounds(t *testing.T) {
	log := logger.NewNop()

	if _, err := NewStore(0, time.Minute, &stubMerger{}, log); err == nil {
		t.Error("capacity 0 accepted, want error")
	}
	if _, err := NewStore(-5, time.Minute, &stubMerger{}, log); err == nil {
		t.Error("negative capacity accepted, want error")
	}
	if _, err := NewStore(100, 0, &stubMerger{}, log); err == nil {
		t.Error("zero max age accepted, want error")
	}
}

func TestMutationResetsAge(t *testing.T) {
	s := newTestStore(t, 10, time.Hour, nil)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := s.ApplyAttribute("a777bf", Attribute{Field: FieldCallsign, Text: "AAL517"}, t0); err != nil {
		t.Fatalf("ApplyAttribute: %v", err)
	}

	ac, ok := s.Get("a777bf", t0)
	if !ok {
		t.Fatal("aircraft missing after ApplyAttribute")
	}
	if age := ac.Age(t0); age != 0 {
		t.Errorf("age immediately after mutation = %v, want 0", age)
	}

	// Age grows monotonically without further mutation.
	if age := ac.Age(t0.Add(3 * time.Second)); age != 3*time.Second {
		t.Errorf("age after 3s = %v, want 3s", age)
	}
	if age := ac.Age(t0.Add(10 * time.Second)); age != 10*time.Second {
		t.Errorf("age after 10s = %v, want 10s", age)
	}

	// A later mutation of any settable field resets it again.
	t1 := t0.Add(42 * time.Second)
	if err := s.ApplyAttribute("a777bf", Attribute{Field: FieldSpeed, Value: 302}, t1); err != nil {
		t.Fatalf("ApplyAttribute: %v", err)
	}
	if age := ac.Age(t1); age != 0 {
		t.Errorf("age after second mutation = %v, want 0", age)
	}
}

func TestAgeFieldIsReadOnly(t *testing.T) {
	s := newTestStore(t, 10, time.Hour, nil)
	now := time.Now()

	// Rejected whether or not the aircraft exists.
	if err := s.ApplyAttribute("abc123", Attribute{Field: FieldAge, Value: 5}, now); !errors.Is(err, ErrReadOnlyField) {
		t.Errorf("ApplyAttribute(age) on unseen address = %v, want ErrReadOnlyField", err)
	}

	s.ApplyAttribute("abc123", Attribute{Field: FieldHeading, Value: 56}, now)
	if err := s.ApplyAttribute("abc123", Attribute{Field: FieldAge, Value: 0}, now); !errors.Is(err, ErrReadOnlyField) {
		t.Errorf("ApplyAttribute(age) on live aircraft = %v, want ErrReadOnlyField", err)
	}

	// The rejected apply must not have created the entity.
	if _, ok := s.Get("nonexistent", now); ok {
		t.Error("rejected age apply created an aircraft")
	}
}

func TestCapacityEvictsLeastRecentlyTouched(t *testing.T) {
	s := newTestStore(t, 3, time.Hour, nil)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		hex := fmt.Sprintf("a%05d", i)
		s.ApplyAttribute(hex, Attribute{Field: FieldHeading, Value: float64(i)}, t0.Add(time.Duration(i)*time.Second))
	}

	// Touch a00000 so a00001 becomes the eviction candidate.
	if _, ok := s.Get("a00000", t0.Add(10*time.Second)); !ok {
		t.Fatal("a00000 missing before eviction")
	}

	s.ApplyAttribute("a00003", Attribute{Field: FieldHeading, Value: 3}, t0.Add(11*time.Second))

	now := t0.Add(12 * time.Second)
	if got := s.Count(now); got != 3 {
		t.Fatalf("Count = %d, want 3", got)
	}
	if _, ok := s.Get("a00001", now); ok {
		t.Error("a00001 survived eviction, want evicted as least-recently-touched")
	}
	for _, hex := range []string{"a00000", "a00002", "a00003"} {
		if _, ok := s.Get(hex, now); !ok {
			t.Errorf("%s missing, want retained", hex)
		}
	}
}

func TestAgeCapEvictsLazily(t *testing.T) {
	s := newTestStore(t, 10, 60*time.Second, nil)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyAttribute("abc123", Attribute{Field: FieldCallsign, Text: "TEST1"}, t0)

	if _, ok := s.Get("abc123", t0.Add(60*time.Second)); !ok {
		t.Error("aircraft at exactly the age cap reported absent, want present")
	}
	if _, ok := s.Get("abc123", t0.Add(61*time.Second)); ok {
		t.Error("aircraft past the age cap reported present, want absent")
	}
	// The expired entry is gone for good, even for an earlier clock reading.
	if got := s.Count(t0.Add(62 * time.Second)); got != 0 {
		t.Errorf("Count after lazy eviction = %d, want 0", got)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s := newTestStore(t, 10, 60*time.Second, nil)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyAttribute("aaaaaa", Attribute{Field: FieldCallsign, Text: "OLD"}, t0)
	s.ApplyAttribute("bbbbbb", Attribute{Field: FieldCallsign, Text: "NEW"}, t0.Add(90*time.Second))

	if removed := s.Sweep(t0.Add(100 * time.Second)); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if _, ok := s.Get("bbbbbb", t0.Add(100*time.Second)); !ok {
		t.Error("fresh aircraft removed by sweep")
	}
}

func TestFragmentMergeEitherArrivalOrder(t *testing.T) {
	want := Position{Lat: 37.74632, Lng: -122.15961}

	orders := []struct {
		name   string
		first  Parity
		second Parity
	}{
		{"even then odd", ParityEven, ParityOdd},
		{"odd then even", ParityOdd, ParityEven},
	}

	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			merger := &stubMerger{pos: &want, ok: true}
			s := newTestStore(t, 10, time.Hour, merger)
			t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

			if resolved := s.ApplyFragment("a777bf", tt.first, []byte{0x01}, t0); resolved {
				t.Fatal("merge attempted with a single fragment")
			}
			if merger.calls != 0 {
				t.Fatalf("merger called %d times before both parities arrived", merger.calls)
			}

			if resolved := s.ApplyFragment("a777bf", tt.second, []byte{0x02}, t0.Add(time.Second)); !resolved {
				t.Fatal("merge not attempted when the second parity arrived")
			}
			if merger.calls != 1 {
				t.Fatalf("merger called %d times, want 1", merger.calls)
			}

			ac, ok := s.Get("a777bf", t0.Add(time.Second))
			if !ok {
				t.Fatal("aircraft missing after merge")
			}
			pos := ac.Position()
			if pos == nil || *pos != want {
				t.Fatalf("position = %v, want %v", pos, want)
			}

			// Both fragment slots cleared by the position assignment.
			if ac.fragState != fragEmpty {
				t.Errorf("fragment state = %v after merge, want empty", ac.fragState)
			}
			if ac.even.raw != nil || ac.odd.raw != nil {
				t.Error("fragment payloads retained after merge")
			}
		})
	}
}

func TestFragmentMergeFailureRetainsSlots(t *testing.T) {
	want := Position{Lat: 43.6777, Lng: -79.6248}
	merger := &stubMerger{pos: &want, ok: false}
	s := newTestStore(t, 10, time.Hour, merger)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyFragment("c0ffee", ParityEven, []byte{0x01}, t0)
	if resolved := s.ApplyFragment("c0ffee", ParityOdd, []byte{0x02}, t0.Add(time.Second)); resolved {
		t.Fatal("failed merge reported as resolved")
	}

	ac, _ := s.Get("c0ffee", t0.Add(time.Second))
	if ac.fragState != fragHasBoth {
		t.Fatalf("fragment state = %v after failed merge, want both retained", ac.fragState)
	}
	if ac.position != nil {
		t.Fatal("failed merge assigned a position")
	}

	// A fresher fragment triggers another attempt; this one succeeds.
	merger.ok = true
	if resolved := s.ApplyFragment("c0ffee", ParityOdd, []byte{0x03}, t0.Add(2*time.Second)); !resolved {
		t.Fatal("merge not re-attempted with a fresher fragment")
	}
	if pos := ac.Position(); pos == nil || *pos != want {
		t.Fatalf("position = %v, want %v", pos, want)
	}
}

func TestPositionAssignmentClearsPendingFragment(t *testing.T) {
	merger := &stubMerger{pos: &Position{Lat: 1, Lng: 2}, ok: true}
	s := newTestStore(t, 10, time.Hour, merger)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyFragment("abc123", ParityEven, []byte{0x01}, t0)
	s.ApplyPosition("abc123", Position{Lat: 50, Lng: 8}, t0.Add(time.Second))

	// The stale even fragment is gone: a following odd fragment must not
	// trigger a merge against it.
	if resolved := s.ApplyFragment("abc123", ParityOdd, []byte{0x02}, t0.Add(2*time.Second)); resolved {
		t.Fatal("stale fragment merged after a resolved position was assigned")
	}
	if merger.calls != 0 {
		t.Fatalf("merger called %d times, want 0", merger.calls)
	}

	ac, _ := s.Get("abc123", t0.Add(2*time.Second))
	if ac.position == nil || ac.position.Lat != 50 {
		t.Fatal("resolved position lost")
	}
}

func TestIdempotentReapplyRefreshesOnlyTimestamp(t *testing.T) {
	s := newTestStore(t, 10, time.Hour, nil)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyAttribute("abc123", Attribute{Field: FieldAltitude, Value: 2217.42}, t0)
	ac, _ := s.Get("abc123", t0)

	t1 := t0.Add(30 * time.Second)
	s.ApplyAttribute("abc123", Attribute{Field: FieldAltitude, Value: 2217.42}, t1)

	if alt := ac.AltitudeM(); alt == nil || *alt != 2217.42 {
		t.Fatalf("altitude = %v, want 2217.42", alt)
	}
	if ac.LastUpdate() != t1 {
		t.Errorf("last update = %v, want refreshed to %v", ac.LastUpdate(), t1)
	}
}

func TestSnapshotsSkipExpired(t *testing.T) {
	s := newTestStore(t, 10, 60*time.Second, nil)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyAttribute("aaaaaa", Attribute{Field: FieldCallsign, Text: "OLD"}, t0)
	s.ApplyAttribute("bbbbbb", Attribute{Field: FieldCallsign, Text: "ACA101"}, t0.Add(90*time.Second))

	snaps := s.Snapshots(t0.Add(100 * time.Second))
	if len(snaps) != 1 {
		t.Fatalf("Snapshots returned %d entries, want 1", len(snaps))
	}
	if snaps[0].Callsign != "ACA101" {
		t.Errorf("snapshot callsign = %q, want ACA101", snaps[0].Callsign)
	}
	if snaps[0].AgeSeconds != 10 {
		t.Errorf("snapshot age = %v, want 10", snaps[0].AgeSeconds)
	}
}
