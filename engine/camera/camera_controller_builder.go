package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithPosition sets the initial eye position.
//
// Parameters:
//   - x: X coordinate of the eye
//   - y: Y coordinate of the eye
//   - z: Z coordinate of the eye
//
// Returns:
//   - CameraControllerOption: functional option to set the position
func WithPosition(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.position = mgl32.Vec3{x, y, z}
	}
}

// WithTarget turns the controller toward a point once every option has been applied,
// so it may be combined with WithPosition in any order.
//
// Parameters:
//   - x: X coordinate of the target
//   - y: Y coordinate of the target
//   - z: Z coordinate of the target
//
// Returns:
//   - CameraControllerOption: functional option to set the look target
func WithTarget(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		t := mgl32.Vec3{x, y, z}
		cc.initialTarget = &t
	}
}

// WithYawPitch sets the initial look angles.
//
// Parameters:
//   - yaw: horizontal angle in radians (0 = +X axis)
//   - pitch: vertical angle in radians, clamped short of the poles
//
// Returns:
//   - CameraControllerOption: functional option to set the look angles
func WithYawPitch(yaw, pitch float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.yaw = yaw
		cc.pitch = pitch
	}
}

// WithMouseSensitivity sets the mouse look sensitivity.
//
// Parameters:
//   - sensitivity: radians per pixel of mouse movement
//
// Returns:
//   - CameraControllerOption: functional option to set mouse sensitivity
func WithMouseSensitivity(sensitivity float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.mouseSensitivity = sensitivity
	}
}

// WithPanSpeed sets the movement speed.
//
// Parameters:
//   - speed: world units per second of held input
//
// Returns:
//   - CameraControllerOption: functional option to set pan speed
func WithPanSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.panSpeed = speed
	}
}
