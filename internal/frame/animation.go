package frame

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
)

// Animation spins the model about the Z axis at a fixed rate. The angle is
// accumulated from the time between calls to Advance.
type Animation struct {
	DegreesPerSecond float32
	// Clock returns a monotonic timestamp. Defaults to hrtime.Now.
	Clock func() time.Duration

	last    time.Duration
	started bool
	angle   float32
}

func NewAnimation(degreesPerSecond float32) *Animation {
	return &Animation{DegreesPerSecond: degreesPerSecond, Clock: hrtime.Now}
}

// Advance moves the animation forward to the current clock reading and
// returns the angle in degrees, in [0, 360). The first call starts the clock.
func (a *Animation) Advance() float32 {
	now := a.Clock()
	if !a.started {
		a.started = true
		a.last = now
		return a.angle
	}

	elapsed := now - a.last
	a.last = now
	a.angle = float32(math.Mod(float64(a.angle)+float64(a.DegreesPerSecond)*elapsed.Seconds(), 360))
	if a.angle < 0 {
		a.angle += 360
	}
	return a.angle
}

func (a *Animation) Angle() float32 {
	return a.angle
}

// Model is the rotation for the current angle.
func (a *Animation) Model() mgl32.Mat4 {
	return mgl32.HomogRotate3D(mgl32.DegToRad(a.angle), mgl32.Vec3{0, 0, 1})
}
