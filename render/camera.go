// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// maxPitch keeps the camera off the poles.
const maxPitch = math32.Pi/2 - 0.01

// Camera is a yaw/pitch camera looking down its local -Z axis.
type Camera struct {
	Position mgl32.Vec3

	// Yaw turns about world +Y, Pitch about the camera's right axis, both
	// in radians.
	Yaw, Pitch float32
}

// Rotation returns the camera orientation.
func (c Camera) Rotation() mgl32.Quat {
	return mgl32.QuatRotate(c.Yaw, mgl32.Vec3{0, 1, 0}).Mul(mgl32.QuatRotate(c.Pitch, mgl32.Vec3{1, 0, 0}))
}

// CamToWorld returns the camera-to-world matrix.
func (c Camera) CamToWorld() mgl32.Mat4 {
	return mgl32.Translate3D(c.Position[0], c.Position[1], c.Position[2]).Mul4(c.Rotation().Mat4())
}

// Forward returns the view direction.
func (c Camera) Forward() mgl32.Vec3 { return c.Rotation().Rotate(mgl32.Vec3{0, 0, -1}) }

// Right returns the camera's right axis.
func (c Camera) Right() mgl32.Vec3 { return c.Rotation().Rotate(mgl32.Vec3{1, 0, 0}) }

// Up returns the camera's up axis.
func (c Camera) Up() mgl32.Vec3 { return c.Rotation().Rotate(mgl32.Vec3{0, 1, 0}) }

// LookAt returns a camera at eye facing target.
func LookAt(eye, target mgl32.Vec3) Camera {
	d := target.Sub(eye)
	if d.Len() == 0 {
		return Camera{Position: eye}
	}
	d = d.Normalize()
	return Camera{
		Position: eye,
		Yaw:      math32.Atan2(-d[0], -d[2]),
		Pitch:    clampf(math32.Asin(d[1]), -maxPitch, maxPitch),
	}
}

// FlyInput is one tick of fly-camera input. Axes are in [-1, 1].
type FlyInput struct {
	Horizontal, Vertical float32
	Ascend, Descend      bool

	// Look enables mouse look; MouseX and MouseY are the pointer deltas.
	Look           bool
	MouseX, MouseY float32
}

// FlyController moves a camera from keyboard and mouse input.
type FlyController struct {
	MoveSpeed   float32
	RotateSpeed float32
}

// DefaultFlyController returns a controller moving 5 units and turning
// 2 radians per second at full input.
func DefaultFlyController() FlyController {
	return FlyController{MoveSpeed: 5, RotateSpeed: 2}
}

// Update returns cam advanced by dt seconds of input.
func (f FlyController) Update(cam Camera, in FlyInput, dt float32) Camera {
	step := f.MoveSpeed * dt
	cam.Position = cam.Position.
		Add(cam.Right().Mul(in.Horizontal * step)).
		Add(cam.Forward().Mul(in.Vertical * step))
	if in.Look {
		cam.Yaw -= in.MouseX * dt * f.RotateSpeed
		cam.Pitch = clampf(cam.Pitch+in.MouseY*dt*f.RotateSpeed, -maxPitch, maxPitch)
	}
	if in.Ascend {
		cam.Position = cam.Position.Add(cam.Up().Mul(step))
	}
	if in.Descend {
		cam.Position = cam.Position.Sub(cam.Up().Mul(step))
	}
	return cam
}
