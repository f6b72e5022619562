package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type CameraBuilderOption func(*cameraImpl)

// WithUp overrides the world up axis used to build the view matrix.
func WithUp(up mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = up.Normalize()
	}
}

// WithFovDegrees sets the vertical field of view. Values outside (1, 179) degrees are clamped.
func WithFovDegrees(deg float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = mgl32.DegToRad(mgl32.Clamp(deg, 1, 179))
	}
}

// WithClipPlanes sets the near and far plane distances of the reversed-Z projection.
// A pair that does not satisfy 0 < near < far is ignored.
//
// Parameters:
//   - near: distance to the plane mapped to depth 1
//   - far: distance to the plane mapped to depth 0
func WithClipPlanes(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if near <= 0 || far <= near || math32.IsInf(far, 1) {
			return
		}
		c.near, c.far = near, far
	}
}

// WithController drives the camera from ctrl.
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
