package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraImpl struct {
	mu *sync.Mutex

	up mgl32.Vec3

	fov  float32
	near float32
	far  float32

	viewMatrix mgl32.Mat4
	position   mgl32.Vec3

	controller CameraController
}

// Camera is a perspective camera driven by a CameraController. Update samples the
// controller once per frame; View then hands out immutable PlanarView snapshots, so the
// orchestrator can keep the previous frame's view while the controller keeps moving.
type Camera interface {
	// Up is the world up axis the view matrix is built around.
	Up() mgl32.Vec3

	// Fov is the vertical field of view in radians.
	Fov() float32

	// Near and Far are the clip plane distances of the reversed-Z projection.
	Near() float32
	Far() float32

	// Position returns the world-space eye position as of the last Update.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// ViewMatrix returns the world to view transform as of the last Update.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	ViewMatrix() mgl32.Mat4

	// Projection returns the reverse-Z perspective projection for an aspect ratio. Depth is 1
	// at the near plane and 0 at the far plane.
	//
	// Parameters:
	//   - aspect: viewport width / height
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	Projection(aspect float32) mgl32.Mat4

	// View builds an immutable view snapshot for a viewport.
	//
	// Parameters:
	//   - viewport: the render resolution the view is rasterized or traced at
	//   - pixelOffset: the sub-pixel jitter in pixels, zero when anti-aliasing is off
	//
	// Returns:
	//   - PlanarView: the view snapshot
	View(viewport common.Extent, pixelOffset mgl32.Vec2) PlanarView

	// Controller is the controller attached at construction, or nil.
	Controller() CameraController

	// Update copies the controller's position and target into the view matrix. Without a
	// controller it does nothing.
	Update()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with the sample's perspective settings: a vertical field of
// view of pi/4, near plane 0.1 and far plane 1000.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:         &sync.Mutex{},
		up:         mgl32.Vec3{0, 1, 0},
		fov:        math32.Pi / 4,
		near:       0.1,
		far:        1000,
		viewMatrix: mgl32.Ident4(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) Projection(aspect float32) mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ReverseZPerspective(c.fov, aspect, c.near, c.far)
}

func (c *cameraImpl) View(viewport common.Extent, pixelOffset mgl32.Vec2) PlanarView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return NewPlanarView(c.viewMatrix, ReverseZPerspective(c.fov, viewport.Aspect(), c.near, c.far), c.position, viewport, pixelOffset)
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
}

// updateMatrices recalculates the view matrix from the controller. No-op without a controller.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	if c.controller == nil {
		return
	}
	c.position = c.controller.Position()
	c.viewMatrix = mgl32.LookAtV(c.position, c.controller.Target(), c.up)
}

// ReverseZPerspective builds a right handed perspective projection with WebGPU's [0, 1] clip
// depth reversed, so the near plane maps to 1 and the far plane to 0.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: width / height
//   - near, far: clip plane distances, 0 < near < far
//
// Returns:
//   - mgl32.Mat4: the projection matrix
func ReverseZPerspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1 / math32.Tan(fovY/2)
	depth := near / (far - near)
	return mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, depth, -1,
		0, 0, far * depth, 0,
	}
}
