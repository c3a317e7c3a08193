package render

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func near(a, b mgl32.Vec3) bool {
	for i := range a {
		if math32.Abs(a[i]-b[i]) > 1e-4 {
			return false
		}
	}
	return true
}

func TestCameraAxes(t *testing.T) {
	c := Camera{}
	if !near(c.Forward(), mgl32.Vec3{0, 0, -1}) {
		t.Errorf("Forward() = %v, want -Z", c.Forward())
	}
	c.Yaw = math.Pi / 2
	if !near(c.Forward(), mgl32.Vec3{-1, 0, 0}) {
		t.Errorf("Forward() after quarter yaw = %v, want -X", c.Forward())
	}
	c = Camera{Position: mgl32.Vec3{1, 2, 3}}
	if got := c.CamToWorld().Col(3); got != (mgl32.Vec4{1, 2, 3, 1}) {
		t.Errorf("CamToWorld() translation = %v", got)
	}
}

func TestLookAt(t *testing.T) {
	eye := mgl32.Vec3{3, 2, 5}
	c := LookAt(eye, mgl32.Vec3{})
	want := eye.Mul(-1).Normalize()
	if !near(c.Forward(), want) {
		t.Errorf("LookAt().Forward() = %v, want %v", c.Forward(), want)
	}
}

func TestFlyController(t *testing.T) {
	f := DefaultFlyController()
	c := f.Update(Camera{}, FlyInput{Vertical: 1}, 0.5)
	if !near(c.Position, mgl32.Vec3{0, 0, -2.5}) {
		t.Errorf("forward move = %v", c.Position)
	}
	c = f.Update(Camera{}, FlyInput{Horizontal: -1, Ascend: true}, 1)
	if !near(c.Position, mgl32.Vec3{-5, 5, 0}) {
		t.Errorf("strafe and ascend = %v", c.Position)
	}
	c = f.Update(Camera{}, FlyInput{MouseX: 1}, 1)
	if c.Yaw != 0 {
		t.Errorf("yaw without Look = %v, want 0", c.Yaw)
	}
	c = f.Update(Camera{}, FlyInput{Look: true, MouseY: 100}, 1)
	if c.Pitch != maxPitch {
		t.Errorf("pitch = %v, want clamped %v", c.Pitch, maxPitch)
	}
}
