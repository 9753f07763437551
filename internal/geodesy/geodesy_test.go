package geodesy

import (
	"math"
	"testing"
)

func TestNewLocationDerivedFields(t *testing.T) {
	tests := []struct {
		name       string
		lat, lng   float64
		ele        float64
		wantRadius float64
		tolerance  float64
	}{
		{
			name:       "equator radius is semi-major axis",
			lat:        0,
			lng:        0,
			wantRadius: SemiMajorAxisM,
			tolerance:  0.001,
		},
		{
			name:       "pole radius is semi-minor axis",
			lat:        90,
			lng:        0,
			wantRadius: SemiMinorAxisM,
			tolerance:  0.001,
		},
		{
			name:       "mid-latitude radius lies between the axes",
			lat:        45,
			lng:        -122,
			wantRadius: (SemiMajorAxisM + SemiMinorAxisM) / 2,
			tolerance:  11000, // loose: just between the two axes
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := NewLocation(tt.lat, tt.lng, tt.ele)

			if math.Abs(loc.Radius-tt.wantRadius) > tt.tolerance {
				t.Errorf("Radius = %.3f, want %.3f (±%.3f)", loc.Radius, tt.wantRadius, tt.tolerance)
			}

			norm := math.Sqrt(loc.NX*loc.NX + loc.NY*loc.NY + loc.NZ*loc.NZ)
			if math.Abs(norm-1.0) > 1e-12 {
				t.Errorf("surface normal is not unit length: %v", norm)
			}
		})
	}
}

func TestNewLocationElevationOffset(t *testing.T) {
	surface := NewLocation(41.422650, -122.386127, 0)
	raised := NewLocation(41.422650, -122.386127, 100)

	dx := raised.X - surface.X
	dy := raised.Y - surface.Y
	dz := raised.Z - surface.Z
	offset := math.Sqrt(dx*dx + dy*dy + dz*dz)

	if math.Abs(offset-100) > 1e-6 {
		t.Errorf("elevation offset = %.9f m, want 100 m", offset)
	}
}

func TestRelateOverhead(t *testing.T) {
	// A target 10 m directly above the observer: distance 10 m, elevation
	// angle 90 degrees, and azimuth 0 (the rotation leaves the target due
	// "north" of the tilted frame).
	observer := NewLocation(41.422650, -122.386127, 10)
	target := NewLocation(41.422650, -122.386127, 20)

	rel := Relate(observer, target)

	if math.Abs(rel.Distance-10) > 0.01 {
		t.Errorf("Distance = %v, want 10 (±0.01)", rel.Distance)
	}
	if rel.Altitude == nil {
		t.Fatal("Altitude = nil, want 90")
	}
	if math.Abs(*rel.Altitude-90) > 0.001 {
		t.Errorf("Altitude = %v, want 90", *rel.Altitude)
	}
	if rel.Azimuth == nil {
		t.Fatal("Azimuth = nil, want 0")
	}
	if math.Abs(*rel.Azimuth) > 0.001 && math.Abs(*rel.Azimuth-360) > 0.001 {
		t.Errorf("Azimuth = %v, want 0", *rel.Azimuth)
	}
}

func TestRelateCoincidentPoints(t *testing.T) {
	loc := NewLocation(41.422650, -122.386127, 10)

	rel := Relate(loc, loc)

	if rel.Distance != 0 {
		t.Errorf("Distance = %v, want 0", rel.Distance)
	}
	if rel.Altitude != nil {
		t.Errorf("Altitude = %v, want nil for coincident points", *rel.Altitude)
	}
	if rel.Azimuth != nil {
		t.Errorf("Azimuth = %v, want nil for coincident points", *rel.Azimuth)
	}
}

func TestRelateCardinalBearings(t *testing.T) {
	tests := []struct {
		name      string
		targetLat float64
		targetLng float64
		wantAz    float64
		tolerance float64
	}{
		{"target due north", 41.0, -74.0, 0.0, 1.0},
		{"target due east", 40.0, -73.0, 90.0, 1.0},
		{"target due south", 39.0, -74.0, 180.0, 1.0},
		{"target due west", 40.0, -75.0, 270.0, 1.0},
	}

	observer := NewLocation(40.0, -74.0, 100)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := NewLocation(tt.targetLat, tt.targetLng, 100)
			rel := Relate(observer, target)

			if rel.Azimuth == nil {
				t.Fatal("Azimuth = nil, want a bearing")
			}

			azDiff := math.Abs(*rel.Azimuth - tt.wantAz)
			if azDiff > 180 {
				azDiff = 360 - azDiff // wrap-around (359 vs 1)
			}
			if azDiff > tt.tolerance {
				t.Errorf("Azimuth = %.3f, want %.1f (±%.1f)", *rel.Azimuth, tt.wantAz, tt.tolerance)
			}

			// One degree of latitude/longitude at 40N is on the order of
			// 85-112 km; sanity check the straight-line distance.
			if rel.Distance < 80000 || rel.Distance > 120000 {
				t.Errorf("Distance = %.0f m, outside the plausible 80-120 km band", rel.Distance)
			}
		})
	}
}

func TestRelateHighTargetElevationAngle(t *testing.T) {
	// An aircraft 10 km overhead but displaced 1 degree of longitude should
	// sit well above the horizon but nowhere near the zenith.
	observer := NewLocation(40.0, -74.0, 100)
	target := NewLocation(40.0, -73.0, 10100)

	rel := Relate(observer, target)

	if rel.Altitude == nil {
		t.Fatal("Altitude = nil, want an elevation angle")
	}
	if *rel.Altitude < 2 || *rel.Altitude > 15 {
		t.Errorf("Altitude = %.3f, want within (2, 15) degrees", *rel.Altitude)
	}
	if rel.Azimuth == nil {
		t.Fatal("Azimuth = nil, want a bearing near east")
	}
	if math.Abs(*rel.Azimuth-90) > 2 {
		t.Errorf("Azimuth = %.3f, want ~90", *rel.Azimuth)
	}
}
