// Package geodesy converts geodetic positions into the pointing angles needed
// to aim a ground-mounted device at an airborne target.
package geodesy

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// WGS84 ellipsoid constants
const (
	SemiMajorAxisM = 6378137.0   // equatorial radius (meters)
	SemiMinorAxisM = 6356752.3   // polar radius (meters)
	DegToRad       = math.Pi / 180.0
	RadToDeg       = 180.0 / math.Pi

	// First eccentricity squared: 1 - (b/a)^2
	eccentricitySquared = 0.00669437999014

	// Below this squared horizontal magnitude the target is treated as
	// directly overhead and azimuth is undefined.
	azimuthEpsilon = 1.0e-6
)

// Location is a geodetic position with its derived Earth-centered Cartesian
// coordinates and local surface normal. The derived fields are computed once
// at construction and never mutated.
type Location struct {
	Lat float64 // geodetic latitude, degrees
	Lng float64 // longitude, degrees
	Ele float64 // elevation above the ellipsoid, meters

	// Earth-centered Cartesian position (meters)
	X, Y, Z float64

	// Unit surface normal at the geodetic position
	NX, NY, NZ float64

	// Ellipsoid radius at this latitude (meters)
	Radius float64
}

// NewLocation computes the Cartesian position and surface normal for the
// given geodetic coordinates. Pure for all finite inputs.
func NewLocation(lat, lng, ele float64) Location {
	latRad := lat * DegToRad
	lngRad := lng * DegToRad

	clat := geocentricLatitude(latRad)

	lngCos := math.Cos(lngRad)
	lngSin := math.Sin(lngRad)
	latCos := math.Cos(latRad)
	latSin := math.Sin(latRad)
	clatCos := math.Cos(clat)
	clatSin := math.Sin(clat)

	radius := ellipsoidRadius(latRad)

	loc := Location{
		Lat:    lat,
		Lng:    lng,
		Ele:    ele,
		Radius: radius,
		NX:     latCos * lngCos,
		NY:     latCos * lngSin,
		NZ:     latSin,
	}

	// Surface point, then offset outward along the local normal by elevation.
	loc.X = radius*lngCos*clatCos + ele*loc.NX
	loc.Y = radius*lngSin*clatCos + ele*loc.NY
	loc.Z = radius*clatSin + ele*loc.NZ

	return loc
}

// geocentricLatitude converts a geodetic latitude (radians) to geocentric
// latitude: atan((1 - e^2) * tan(lat)).
func geocentricLatitude(latRad float64) float64 {
	return math.Atan((1.0 - eccentricitySquared) * math.Tan(latRad))
}

// ellipsoidRadius returns the WGS84 ellipsoid radius in meters at the given
// geodetic latitude (radians).
func ellipsoidRadius(latRad float64) float64 {
	cos := math.Cos(latRad)
	sin := math.Sin(latRad)

	t1 := SemiMajorAxisM * SemiMajorAxisM * cos
	t2 := SemiMinorAxisM * SemiMinorAxisM * sin
	t3 := SemiMajorAxisM * cos
	t4 := SemiMinorAxisM * sin

	return math.Sqrt((t1*t1 + t2*t2) / (t3*t3 + t4*t4))
}

// Relation describes where a target lies relative to an observer. Azimuth and
// Altitude are nil in the degenerate cases where they are undefined: altitude
// when the points coincide, azimuth when the target is directly overhead (or
// coincident). Distance is always defined.
type Relation struct {
	Azimuth  *float64 // bearing from true north, [0,360), clockwise
	Altitude *float64 // elevation angle above the horizon, degrees
	Distance float64  // straight-line distance, meters
}

// Relate computes the azimuth, elevation angle, and straight-line distance
// from observer to target.
func Relate(observer, target Location) Relation {
	rel := Relation{Distance: distance(observer, target)}

	// Rotate the target into a frame where the observer sits on the prime
	// meridian, then tilt by the observer's geocentric latitude. The azimuth
	// falls out of the horizontal components of the rotated vector.
	rotated := NewLocation(target.Lat, target.Lng-observer.Lng, target.Ele)

	olat := geocentricLatitude(-observer.Lat * DegToRad)
	olatCos := math.Cos(olat)
	olatSin := math.Sin(olat)

	by := rotated.Y
	bz := rotated.X*olatSin + rotated.Z*olatCos

	// The rotated components carry the full Earth radius even for coincident
	// points, so the bearing is gated on the separation as well.
	if rel.Distance > 0 && bz*bz+by*by > azimuthEpsilon {
		theta := math.Atan2(bz, by) * RadToDeg

		azimuth := 90.0 - theta
		if azimuth < 0.0 {
			azimuth += 360.0
		}
		if azimuth >= 360.0 {
			azimuth -= 360.0
		}
		rel.Azimuth = &azimuth
	}

	if rel.Distance > 0 {
		// Elevation angle from the dot product of the unit line-of-sight
		// vector with the observer's surface normal.
		dx := (target.X - observer.X) / rel.Distance
		dy := (target.Y - observer.Y) / rel.Distance
		dz := (target.Z - observer.Z) / rel.Distance

		altitude := 90.0 - RadToDeg*math.Acos(
			dx*observer.NX+dy*observer.NY+dz*observer.NZ,
		)
		rel.Altitude = &altitude
	}

	return rel
}

// distance returns the Euclidean norm of the Cartesian difference in meters.
func distance(a, b Location) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z

	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// MagneticDeclination returns the magnetic declination in degrees (+East,
// -West) at the given position and time. Used to correct azimuths for
// pointing devices whose zero is aligned to magnetic rather than true north.
func MagneticDeclination(lat, lng, elevM float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lng, elevM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Return 0 for safety if calculation fails
		return 0.0
	}

	return mag.D()
}
