package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustumFromMatrix extracts frustum planes from a view-projection matrix using the
// Gribb/Hartmann method. Clip space depth is assumed to be in [0, 1] as in WebGPU, so the
// near plane is the third row alone rather than row3 + row2.
//
// Parameters:
//   - viewProj: the combined projection * view matrix
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustumFromMatrix(viewProj mgl32.Mat4) Frustum {
	var f Frustum

	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	rows := [6]mgl32.Vec4{
		r3.Add(r0),
		r3.Sub(r0),
		r3.Add(r1),
		r3.Sub(r1),
		r2,
		r3.Sub(r2),
	}
	for i, r := range rows {
		f.Planes[i] = Plane{Normal: r.Vec3(), Distance: r.W()}
		f.normalizePlane(i)
	}

	return f
}

// IntersectsAABB reports whether the box is at least partially inside the frustum.
// Uses the positive-vertex test, so boxes near frustum corners may be reported as
// intersecting when they are not.
//
// Parameters:
//   - box: the world space bounding box to test
//
// Returns:
//   - bool: false only when the box is fully outside one of the planes
func (f *Frustum) IntersectsAABB(box AABB) bool {
	for _, p := range f.Planes {
		var v mgl32.Vec3
		for axis := 0; axis < 3; axis++ {
			if p.Normal[axis] >= 0 {
				v[axis] = box.Max[axis]
			} else {
				v[axis] = box.Min[axis]
			}
		}
		if p.Normal.Dot(v)+p.Distance < 0 {
			return false
		}
	}
	return true
}

// normalizePlane normalizes a frustum plane so that the normal has unit length.
func (f *Frustum) normalizePlane(index int) {
	p := &f.Planes[index]
	length := math32.Sqrt(p.Normal.Dot(p.Normal))
	if length > 0 {
		invLen := 1.0 / length
		p.Normal = p.Normal.Mul(invLen)
		p.Distance *= invLen
	}
}
