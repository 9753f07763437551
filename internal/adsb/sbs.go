package adsb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BaseStation (SBS-1) CSV field indexes for the fields this system consumes.
// Reference layout: MSG,<type>,<session>,<aircraft>,<hex>,<flight>,
// <date-gen>,<time-gen>,<date-log>,<time-log>,<callsign>,<altitude>,
// <ground-speed>,<track>,<lat>,<lon>,<vertical-rate>,<squawk>,...
const (
	sbsFieldMsgType  = 1
	sbsFieldHex      = 4
	sbsFieldCallsign = 10
	sbsFieldAltitude = 11
	sbsFieldSpeed    = 12
	sbsFieldTrack    = 13
	sbsFieldLat      = 14
	sbsFieldLng      = 15

	sbsMinFields = 16
)

// parseSBSLine parses one BaseStation CSV line into a Report. It returns
// (nil, nil) for valid lines this system does not consume (other message
// types, messages without the needed fields) and an error for malformed
// lines, which the ingestion boundary drops silently.
func parseSBSLine(line string, now time.Time) (*Report, error) {
	fields := strings.Split(line, ",")
	if len(fields) < sbsMinFields || fields[0] != "MSG" {
		return nil, fmt.Errorf("adsb: not a basestation MSG line")
	}

	hex := strings.ToLower(strings.TrimSpace(fields[sbsFieldHex]))
	if hex == "" {
		return nil, fmt.Errorf("adsb: basestation line without hex ident")
	}

	switch fields[sbsFieldMsgType] {
	case "1": // ES identification
		callsign := strings.TrimRight(strings.TrimSpace(fields[sbsFieldCallsign]), "_")
		if callsign == "" {
			return nil, nil
		}
		return &Report{Hex: hex, Kind: KindIdentity, Callsign: callsign, Time: now}, nil

	case "3": // ES airborne position
		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[sbsFieldLat]), 64)
		if err != nil {
			return nil, fmt.Errorf("adsb: bad latitude: %w", err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(fields[sbsFieldLng]), 64)
		if err != nil {
			return nil, fmt.Errorf("adsb: bad longitude: %w", err)
		}

		rep := &Report{
			Hex:      hex,
			Kind:     KindPosition,
			Position: &Position{Lat: lat, Lng: lng},
			Time:     now,
		}
		if altStr := strings.TrimSpace(fields[sbsFieldAltitude]); altStr != "" {
			altFt, err := strconv.ParseFloat(altStr, 64)
			if err != nil {
				return nil, fmt.Errorf("adsb: bad altitude: %w", err)
			}
			rep.AltitudeM = altFt * FeetToMeters
			rep.HasAltitude = true
		}
		return rep, nil

	case "4": // ES airborne velocity
		gsStr := strings.TrimSpace(fields[sbsFieldSpeed])
		trackStr := strings.TrimSpace(fields[sbsFieldTrack])
		if gsStr == "" || trackStr == "" {
			return nil, nil
		}
		gsKnots, err := strconv.ParseFloat(gsStr, 64)
		if err != nil {
			return nil, fmt.Errorf("adsb: bad ground speed: %w", err)
		}
		track, err := strconv.ParseFloat(trackStr, 64)
		if err != nil {
			return nil, fmt.Errorf("adsb: bad track: %w", err)
		}
		return &Report{
			Hex:        hex,
			Kind:       KindVelocity,
			SpeedMPH:   gsKnots * KnotsToMPH,
			HeadingDeg: track,
			Time:       now,
		}, nil
	}

	return nil, nil
}
