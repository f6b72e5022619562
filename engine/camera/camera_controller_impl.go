package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// maxPitch keeps the look direction away from the up axis, where LookAt degenerates.
const maxPitch = math32.Pi/2 - 0.01

// cameraControllerImpl is the single implementation of CameraController.
// Position is moved by the planar methods; yaw and pitch are changed by Look and LookAt.
type cameraControllerImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	yaw      float32 // around +Y, 0 faces +X
	pitch    float32 // positive looks up

	mouseSensitivity float32
	panSpeed         float32

	// initialTarget is applied once all options have run
	initialTarget *mgl32.Vec3
}

// Compile-time interface compliance check
var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a first-person controller standing at eye height at the origin
// and looking down +X, moving at 3 units per second.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:               &sync.Mutex{},
		position:         mgl32.Vec3{0, 1.8, 0},
		mouseSensitivity: 0.003,
		panSpeed:         3.0,
	}

	for _, option := range options {
		option(cc)
	}
	if cc.initialTarget != nil {
		cc.lookAt(*cc.initialTarget)
		cc.initialTarget = nil
	}
	cc.pitch = common.Clamp(cc.pitch, -maxPitch, maxPitch)
	return cc
}

// --- internal helpers ---

// forward computes the look direction from yaw and pitch. Caller must hold the mutex.
func (cc *cameraControllerImpl) forward() mgl32.Vec3 {
	cp := math32.Cos(cc.pitch)
	return mgl32.Vec3{
		cp * math32.Cos(cc.yaw),
		math32.Sin(cc.pitch),
		cp * math32.Sin(cc.yaw),
	}
}

// right is the horizontal axis to the right of the look direction. Caller must hold the mutex.
func (cc *cameraControllerImpl) right() mgl32.Vec3 {
	return mgl32.Vec3{-math32.Sin(cc.yaw), 0, math32.Cos(cc.yaw)}
}

func (cc *cameraControllerImpl) lookAt(target mgl32.Vec3) {
	d := target.Sub(cc.position)
	if d.Len() < 1e-6 {
		return
	}
	d = d.Normalize()
	cc.yaw = math32.Atan2(d[2], d[0])
	cc.pitch = common.Clamp(math32.Asin(d[1]), -maxPitch, maxPitch)
}

// --- CameraController ---

func (cc *cameraControllerImpl) Position() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) Target() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position.Add(cc.forward())
}

func (cc *cameraControllerImpl) Forward() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.forward()
}

func (cc *cameraControllerImpl) SetPosition(p mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position = p
}

func (cc *cameraControllerImpl) LookAt(target mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.lookAt(target)
}

func (cc *cameraControllerImpl) Look(dx, dy float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.yaw += dx * cc.mouseSensitivity
	cc.pitch = common.Clamp(cc.pitch-dy*cc.mouseSensitivity, -maxPitch, maxPitch)
	// wrap yaw to [-pi, pi]
	if cc.yaw > math32.Pi {
		cc.yaw -= 2 * math32.Pi
	} else if cc.yaw < -math32.Pi {
		cc.yaw += 2 * math32.Pi
	}
}

func (cc *cameraControllerImpl) Yaw() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.yaw
}

func (cc *cameraControllerImpl) Pitch() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.pitch
}

func (cc *cameraControllerImpl) MouseSensitivity() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.mouseSensitivity
}

// --- planarCameraController ---

func (cc *cameraControllerImpl) PanRight(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position = cc.position.Add(cc.right().Mul(delta * cc.panSpeed))
}

func (cc *cameraControllerImpl) PanUp(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position[1] += delta * cc.panSpeed
}

func (cc *cameraControllerImpl) PanForward(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	flat := mgl32.Vec3{math32.Cos(cc.yaw), 0, math32.Sin(cc.yaw)}
	cc.position = cc.position.Add(flat.Mul(delta * cc.panSpeed))
}

func (cc *cameraControllerImpl) PanSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.panSpeed
}
