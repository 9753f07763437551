// Package ptz drives the pointing device that follows the tracked aircraft.
package ptz

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrNotConnected is returned when a command is issued before Connect.
var ErrNotConnected = errors.New("ptz: device not connected")

// CommandError is a failure reported by a reachable device: the command was
// understood but could not be carried out, typically because the requested
// pose is outside the device's limits. Callers may keep issuing commands.
// Transport failures are returned as plain errors and indicate the device
// itself is unreachable.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ptz: %s failed: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Pointer aims a device at an azimuth/altitude pose. MoveTo may block for
// the duration of the physical movement and returns the pose actually
// commanded after offsets and limits are applied.
type Pointer interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	MoveTo(ctx context.Context, azimuthDeg, altitudeDeg float64) (achievedAz, achievedAlt float64, err error)
}

// aimAzimuth applies a mount offset to a true-bearing azimuth and wraps the
// result into [0, 360).
func aimAzimuth(azimuthDeg, offsetDeg float64) float64 {
	az := math.Mod(azimuthDeg+offsetDeg, 360)
	if az < 0 {
		az += 360
	}
	return az
}

// aimAltitude applies a mount offset to an elevation angle and clamps the
// result to the device's [0, 90] range.
func aimAltitude(altitudeDeg, offsetDeg float64) float64 {
	alt := altitudeDeg + offsetDeg
	if alt < 0 {
		return 0
	}
	if alt > 90 {
		return 90
	}
	return alt
}
