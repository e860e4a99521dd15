package frame

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ClipCorrection maps OpenGL clip space, which mgl32 produces, onto Vulkan
// clip space: Y points down and depth runs from 0 to 1 instead of -1 to 1.
// Every projection goes through it exactly once.
var ClipCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Projection is a right-handed perspective projection in Vulkan clip space.
func Projection(fovYDegrees, aspect, near, far float32) mgl32.Mat4 {
	return ClipCorrection.Mul4(mgl32.Perspective(mgl32.DegToRad(fovYDegrees), aspect, near, far))
}

type Camera struct {
	Eye    mgl32.Vec3
	Center mgl32.Vec3
	Up     mgl32.Vec3

	FovY float32
	Near float32
	Far  float32
}

func DefaultCamera() Camera {
	return Camera{
		Eye:    mgl32.Vec3{2, 2, 2},
		Center: mgl32.Vec3{0, 0, 0},
		Up:     mgl32.Vec3{0, 0, 1},
		FovY:   45,
		Near:   0.1,
		Far:    10,
	}
}

func (c Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Center, c.Up)
}

// Projection returns the camera projection for a surface of the given size.
// A zero height is treated as square.
func (c Camera) Projection(width, height int) mgl32.Mat4 {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return Projection(c.FovY, aspect, c.Near, c.Far)
}
