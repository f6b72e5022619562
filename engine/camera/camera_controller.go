package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController defines the first-person control interface.
// Controllers own positional state (eye position, yaw, pitch). Camera reads from the
// controller and computes its view matrix. Embeds planarCameraController for translation
// along the camera's local axes.
type CameraController interface {
	planarCameraController

	// Position returns the camera's world-space eye position.
	//
	// Returns:
	//   - mgl32.Vec3: world-space eye position
	Position() mgl32.Vec3

	// Target returns a point one unit ahead of the eye along the look direction.
	//
	// Returns:
	//   - mgl32.Vec3: world-space look-at point
	Target() mgl32.Vec3

	// Forward returns the normalized look direction.
	//
	// Returns:
	//   - mgl32.Vec3: the look direction
	Forward() mgl32.Vec3

	// SetPosition sets the camera's world-space position directly.
	//
	// Parameters:
	//   - p: world-space coordinates
	SetPosition(p mgl32.Vec3)

	// LookAt turns the camera toward a world-space point without moving it.
	//
	// Parameters:
	//   - target: the point to face
	LookAt(target mgl32.Vec3)

	// Look rotates the camera by a mouse delta in pixels, scaled by MouseSensitivity.
	// Pitch is clamped short of straight up and straight down.
	//
	// Parameters:
	//   - dx: horizontal delta, positive turns right
	//   - dy: vertical delta, positive looks down
	Look(dx, dy float32)

	// Yaw returns the horizontal look angle in radians, 0 facing +X.
	//
	// Returns:
	//   - float32: yaw in radians
	Yaw() float32

	// Pitch returns the vertical look angle in radians, positive looking up.
	//
	// Returns:
	//   - float32: pitch in radians
	Pitch() float32

	// MouseSensitivity returns the radians turned per pixel of mouse movement.
	//
	// Returns:
	//   - float32: multiplier for mouse movement
	MouseSensitivity() float32
}

// planarCameraController defines planar translation control methods.
// Movement follows the camera's local axes; PanForward moves along the horizontal
// projection of the look direction so looking down does not sink the camera.
type planarCameraController interface {
	// PanRight translates the camera along its local right axis.
	// Positive delta moves right, negative moves left.
	//
	// Parameters:
	//   - delta: pan amount scaled by PanSpeed
	PanRight(delta float32)

	// PanUp translates the camera along the world up axis.
	// Positive delta moves up, negative moves down.
	//
	// Parameters:
	//   - delta: pan amount scaled by PanSpeed
	PanUp(delta float32)

	// PanForward translates the camera along its horizontal forward axis.
	// Positive delta moves forward, negative moves back.
	//
	// Parameters:
	//   - delta: pan amount scaled by PanSpeed
	PanForward(delta float32)

	// PanSpeed returns the movement speed in world units per second.
	//
	// Returns:
	//   - float32: multiplier for pan input
	PanSpeed() float32
}
