package adsb

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Six-bit character encoding for extended squitter identification messages.
// '#' marks reserved codes, '_' is the padding character.
const modeSCharset = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ#####_###############0123456789######"

// Fragments further apart than this describe positions too far separated for
// an unambiguous combination.
const maxFragmentSkewForMerge = 10 * time.Second

// ModeSDecoder decodes DF17 extended squitter frames as emitted by a
// dump1090 "TCP raw output" feed: the frame payload is the hex text between
// the '*' and ';' markers. Identification, airborne position and airborne
// velocity messages produce reports; everything else is skipped.
type ModeSDecoder struct{}

func NewModeSDecoder() *ModeSDecoder {
	return &ModeSDecoder{}
}

// rawFrame holds one frame as hex nibbles, addressed by message bit number.
type rawFrame []byte

func parseFrame(frame []byte) (rawFrame, error) {
	// 22 nibbles cover through bit 88, the end of the extended squitter
	// message field.
	if len(frame) < 22 {
		return nil, fmt.Errorf("adsb: frame too short (%d hex chars)", len(frame))
	}
	nibbles := make(rawFrame, len(frame))
	for i, c := range frame {
		switch {
		case c >= '0' && c <= '9':
			nibbles[i] = c - '0'
		case c >= 'a' && c <= 'f':
			nibbles[i] = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			nibbles[i] = c - 'A' + 10
		default:
			return nil, fmt.Errorf("adsb: frame is not hex at offset %d", i)
		}
	}
	return nibbles, nil
}

// bits extracts n bits starting at the given 1-based message bit.
func (f rawFrame) bits(start, n int) uint32 {
	var v uint32
	for i := start; i < start+n; i++ {
		nibble := f[(i-1)/4]
		shift := 3 - (i-1)%4
		v = v<<1 | uint32(nibble>>shift)&1
	}
	return v
}

func (f rawFrame) downlinkFormat() uint32 { return f.bits(1, 5) }

func (f rawFrame) icao() string { return fmt.Sprintf("%06x", f.bits(9, 24)) }

func (f rawFrame) typeCode() uint32 { return f.bits(33, 5) }

func (d *ModeSDecoder) Decode(frame []byte) (*Report, error) {
	f, err := parseFrame(frame)
	if err != nil {
		return nil, err
	}
	if f.downlinkFormat() != 17 {
		return nil, nil
	}

	hex := f.icao()
	tc := f.typeCode()

	switch {
	case tc >= 1 && tc <= 4:
		return decodeIdentification(f, hex), nil
	case tc >= 9 && tc <= 18:
		return decodeAirbornePosition(f, frame, hex), nil
	case tc == 19:
		return decodeAirborneVelocity(f, hex), nil
	}
	return nil, nil
}

func decodeIdentification(f rawFrame, hex string) *Report {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteByte(modeSCharset[f.bits(41+6*i, 6)])
	}
	callsign := strings.TrimRight(b.String(), "_#")
	if callsign == "" {
		return nil
	}
	return &Report{Hex: hex, Kind: KindIdentity, Callsign: callsign}
}

func decodeAirbornePosition(f rawFrame, frame []byte, hex string) *Report {
	kind := KindPositionEven
	if f.bits(54, 1) == 1 {
		kind = KindPositionOdd
	}
	rep := &Report{Hex: hex, Kind: kind, Raw: append([]byte(nil), frame...)}

	// 12-bit barometric altitude. With the Q bit set the remaining 11 bits
	// count 25 ft increments from -1000 ft; without it the encoding is
	// Gillham gray code, which this feed does not carry.
	altField := f.bits(41, 12)
	if altField != 0 && altField&0x10 != 0 {
		n := (altField&0x0FE0)>>1 | altField&0x000F
		rep.AltitudeM = (float64(n)*25 - 1000) * FeetToMeters
		rep.HasAltitude = true
	}
	return rep
}

func decodeAirborneVelocity(f rawFrame, hex string) *Report {
	// Subtypes 1 and 2 carry ground speed east/west and north/south
	// components. Airspeed subtypes are skipped.
	sub := f.bits(38, 3)
	if sub != 1 && sub != 2 {
		return nil
	}
	vewField := f.bits(47, 10)
	vnsField := f.bits(58, 10)
	if vewField == 0 || vnsField == 0 {
		return nil
	}
	vew := float64(vewField - 1)
	if f.bits(46, 1) == 1 {
		vew = -vew
	}
	vns := float64(vnsField - 1)
	if f.bits(57, 1) == 1 {
		vns = -vns
	}

	speedKnots := math.Hypot(vew, vns)
	track := math.Atan2(vew, vns) * (180 / math.Pi)
	if track < 0 {
		track += 360
	}
	return &Report{
		Hex:        hex,
		Kind:       KindVelocity,
		SpeedMPH:   speedKnots * KnotsToMPH,
		HeadingDeg: track,
	}
}

// MergePosition combines an even and an odd airborne position fragment into
// a geographic coordinate using globally unambiguous CPR decoding. The
// position is taken from whichever fragment is newer.
func (d *ModeSDecoder) MergePosition(even []byte, evenTime time.Time, odd []byte, oddTime time.Time) (*Position, bool) {
	skew := evenTime.Sub(oddTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxFragmentSkewForMerge {
		return nil, false
	}

	fe, err := parseFrame(even)
	if err != nil {
		return nil, false
	}
	fo, err := parseFrame(odd)
	if err != nil {
		return nil, false
	}

	latEven := float64(fe.bits(55, 17))
	lonEven := float64(fe.bits(72, 17))
	latOdd := float64(fo.bits(55, 17))
	lonOdd := float64(fo.bits(72, 17))

	// CPR latitude and longitude are 17-bit fractions of the zone size.
	const scale = 131072.0
	const dLatEven = 360.0 / 60
	const dLatOdd = 360.0 / 59

	j := math.Floor((59*latEven-60*latOdd)/scale + 0.5)
	rlatEven := dLatEven * (cprMod(j, 60) + latEven/scale)
	rlatOdd := dLatOdd * (cprMod(j, 59) + latOdd/scale)
	if rlatEven >= 270 {
		rlatEven -= 360
	}
	if rlatOdd >= 270 {
		rlatOdd -= 360
	}

	// Both fragments must fall in the same longitude zone.
	if cprNL(rlatEven) != cprNL(rlatOdd) {
		return nil, false
	}

	lat := rlatOdd
	cpr := lonOdd
	fflag := 1
	if evenTime.After(oddTime) {
		lat = rlatEven
		cpr = lonEven
		fflag = 0
	}
	if lat < -90 || lat > 90 {
		return nil, false
	}

	nl := cprNL(lat)
	m := math.Floor((lonEven*float64(nl-1)-lonOdd*float64(nl))/scale + 0.5)
	ni := nl - fflag
	if ni < 1 {
		ni = 1
	}
	lng := 360.0 / float64(ni) * (cprMod(m, float64(ni)) + cpr/scale)
	if lng > 180 {
		lng -= 360
	}

	return &Position{Lat: lat, Lng: lng}, true
}

func cprMod(a, b float64) float64 {
	res := math.Mod(a, b)
	if res < 0 {
		res += b
	}
	return res
}

// Latitude zone boundaries from the 1090-WP-9-14 precomputed NL table. The
// first entry bounds NL=59, the last NL=2; anything poleward of 87 degrees
// collapses to a single zone.
var cprNLBoundaries = []float64{
	10.47047130, 14.82817437, 18.18626357, 21.02939493, 23.54504487,
	25.82924707, 27.93898710, 29.91135686, 31.77209708, 33.53993436,
	35.22899598, 36.85025108, 38.41241892, 39.92256684, 41.38651832,
	42.80914012, 44.19454951, 45.54626723, 46.86733252, 48.16039128,
	49.42776439, 50.67150166, 51.89342469, 53.09516153, 54.27817472,
	55.44378444, 56.59318756, 57.72747354, 58.84763776, 59.95459277,
	61.04917774, 62.13216659, 63.20427479, 64.26616523, 65.31845310,
	66.36171008, 67.39646774, 68.42322022, 69.44242631, 70.45451075,
	71.45986473, 72.45884545, 73.45177442, 74.43893416, 75.42056257,
	76.39684391, 77.36789461, 78.33374083, 79.29428225, 80.24923213,
	81.19801349, 82.13956981, 83.07199445, 83.99173563, 84.89166191,
	85.75541621, 86.53536998, 87.00000000,
}

func cprNL(lat float64) int {
	if lat < 0 {
		lat = -lat
	}
	for i, bound := range cprNLBoundaries {
		if lat < bound {
			return 59 - i
		}
	}
	return 1
}
