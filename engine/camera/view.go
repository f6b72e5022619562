package camera

import (
	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/go-gl/mathgl/mgl32"
)

// PlanarView is an immutable snapshot of a perspective view at a fixed viewport. The
// orchestrator keeps the current and the previous one; the previous one may only be read
// while previous views are valid.
type PlanarView struct {
	view        mgl32.Mat4
	projection  mgl32.Mat4
	position    mgl32.Vec3
	viewport    common.Extent
	pixelOffset mgl32.Vec2
}

// NewPlanarView builds a view snapshot.
//
// Parameters:
//   - view: world to view transform
//   - projection: the unjittered projection
//   - position: world-space eye position
//   - viewport: the resolution the view is rendered at
//   - pixelOffset: sub-pixel jitter in pixels, +x right and +y down
//
// Returns:
//   - PlanarView: the snapshot
func NewPlanarView(view, projection mgl32.Mat4, position mgl32.Vec3, viewport common.Extent, pixelOffset mgl32.Vec2) PlanarView {
	return PlanarView{
		view:        view,
		projection:  projection,
		position:    position,
		viewport:    viewport,
		pixelOffset: pixelOffset,
	}
}

// Viewport returns the render resolution of the view.
func (v PlanarView) Viewport() common.Extent {
	return v.viewport
}

// PixelOffset returns the jitter applied to the projection, in pixels.
func (v PlanarView) PixelOffset() mgl32.Vec2 {
	return v.pixelOffset
}

// Position returns the eye position.
func (v PlanarView) Position() mgl32.Vec3 {
	return v.position
}

// ViewMatrix returns the world to view transform.
func (v PlanarView) ViewMatrix() mgl32.Mat4 {
	return v.view
}

// WorldToClipNoOffset returns projection * view without jitter. Motion vectors are computed
// between the unjittered transforms of two frames.
func (v PlanarView) WorldToClipNoOffset() mgl32.Mat4 {
	return v.projection.Mul4(v.view)
}

// WorldToClip returns the jittered projection * view. A pixel offset of (dx, dy) moves
// geometry dx pixels right and dy pixels down on screen.
func (v PlanarView) WorldToClip() mgl32.Mat4 {
	if v.pixelOffset == (mgl32.Vec2{}) || v.viewport.IsZero() {
		return v.WorldToClipNoOffset()
	}
	ox := 2 * v.pixelOffset[0] / float32(v.viewport.Width)
	oy := -2 * v.pixelOffset[1] / float32(v.viewport.Height)
	return mgl32.Translate3D(ox, oy, 0).Mul4(v.projection).Mul4(v.view)
}

// ClipToWorld returns the inverse of WorldToClip.
func (v PlanarView) ClipToWorld() mgl32.Mat4 {
	return v.WorldToClip().Inv()
}

// Equal reports whether two views would produce identical constants.
func (v PlanarView) Equal(o PlanarView) bool {
	return v.view == o.view && v.projection == o.projection && v.position == o.position &&
		v.viewport == o.viewport && v.pixelOffset == o.pixelOffset
}

// Constants returns the GPU representation of the view.
func (v PlanarView) Constants() ViewConstants {
	c := ViewConstants{
		WorldToClip:         v.WorldToClip(),
		WorldToClipNoOffset: v.WorldToClipNoOffset(),
		ClipToWorld:         v.ClipToWorld(),
		CameraPosition:      v.position,
		PixelOffset:         v.pixelOffset,
	}
	if !v.viewport.IsZero() {
		w, h := float32(v.viewport.Width), float32(v.viewport.Height)
		c.ViewportSize = mgl32.Vec2{w, h}
		c.ViewportSizeInv = mgl32.Vec2{1 / w, 1 / h}
		c.ClipToWindowScale = mgl32.Vec2{0.5 * w, -0.5 * h}
	}
	return c
}
