// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Extent is a two dimensional size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Fits reports whether e is no larger than other in both dimensions.
func (e Extent) Fits(other Extent) bool {
	return e.Width <= other.Width && e.Height <= other.Height
}

// Scale multiplies both dimensions by s, rounding to nearest and never returning a zero dimension.
func (e Extent) Scale(s float32) Extent {
	return Extent{
		Width:  max(1, uint32(math32.Round(float32(e.Width)*s))),
		Height: max(1, uint32(math32.Round(float32(e.Height)*s))),
	}
}

// Aspect returns width / height, or 1 for a degenerate extent.
func (e Extent) Aspect() float32 {
	if e.Height == 0 {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// AABB is an axis aligned bounding box. The zero value is not empty; use EmptyAABB.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// EmptyAABB returns an inverted box that any Extend call will overwrite.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether the box contains no points.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend grows the box to contain p.
func (b AABB) Extend(p mgl32.Vec3) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box containing both boxes.
func (b AABB) Union(o AABB) AABB {
	if o.IsEmpty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the edge lengths of the box.
func (b AABB) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// SurfaceArea returns the total area of the six faces, or 0 for an empty box.
func (b AABB) SurfaceArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	s := b.Size()
	return 2 * (s[0]*s[1] + s[1]*s[2] + s[2]*s[0])
}

// Transform returns the box enclosing the eight transformed corners.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	if b.IsEmpty() {
		return b
	}
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		corner := mgl32.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			corner[0] = b.Max[0]
		}
		if i&2 != 0 {
			corner[1] = b.Max[1]
		}
		if i&4 != 0 {
			corner[2] = b.Max[2]
		}
		out = out.Extend(mgl32.TransformCoordinate(corner, m))
	}
	return out
}
