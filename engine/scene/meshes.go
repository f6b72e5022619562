package scene

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Primitive names accepted by scene descriptions.
const (
	PrimitiveBox    = "box"
	PrimitivePlane  = "plane"
	PrimitiveSphere = "sphere"
	PrimitiveTube   = "tube"
)

// BuildPrimitive generates the named procedural mesh.
//
// Parameters:
//   - name: the mesh name
//   - desc: the primitive description
//
// Returns:
//   - *Mesh: the generated mesh with bounds
//   - error: an error if the primitive kind is unknown or a dimension is invalid
func BuildPrimitive(name string, desc MeshDescription) (*Mesh, error) {
	var m *Mesh
	switch desc.Primitive {
	case PrimitiveBox:
		m = Box(desc.Size)
	case PrimitivePlane:
		m = Plane(desc.Size[0], desc.Size[2], max(desc.Tiling, 1))
	case PrimitiveSphere:
		m = Sphere(desc.Radius, max(desc.Segments, 8), max(desc.Rings, 4))
	case PrimitiveTube:
		if desc.Joints < 2 {
			return nil, fmt.Errorf("scene: tube %q needs at least 2 joints, got %d", name, desc.Joints)
		}
		m = Tube(desc.Radius, desc.Height, max(desc.Segments, 6), desc.Joints)
	default:
		return nil, fmt.Errorf("scene: mesh %q has unknown primitive %q", name, desc.Primitive)
	}
	if len(m.Indices) == 0 {
		return nil, fmt.Errorf("scene: mesh %q is empty", name)
	}
	m.Name = name
	m.recomputeBounds()
	return m, nil
}

// Box returns an axis aligned box centred on the origin with 24 vertices, one quad per face.
func Box(size mgl32.Vec3) *Mesh {
	h := size.Mul(0.5)
	faces := []struct {
		normal, u, v mgl32.Vec3
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}

	m := &Mesh{}
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := mul3(f.normal.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])), h)
			m.Vertices = append(m.Vertices, Vertex{
				Position: p,
				Normal:   f.normal,
				Texcoord: mgl32.Vec2{c[0]*0.5 + 0.5, 0.5 - c[1]*0.5},
				Tangent:  f.u.Vec4(1),
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Plane returns a horizontal quad facing +Y whose texture repeats tiling times across it.
func Plane(width, depth float32, tiling int) *Mesh {
	hw, hd := width*0.5, depth*0.5
	t := float32(tiling)
	m := &Mesh{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-hw, 0, hd}, Texcoord: mgl32.Vec2{0, t}},
			{Position: mgl32.Vec3{hw, 0, hd}, Texcoord: mgl32.Vec2{t, t}},
			{Position: mgl32.Vec3{hw, 0, -hd}, Texcoord: mgl32.Vec2{t, 0}},
			{Position: mgl32.Vec3{-hw, 0, -hd}, Texcoord: mgl32.Vec2{0, 0}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
	for i := range m.Vertices {
		m.Vertices[i].Normal = mgl32.Vec3{0, 1, 0}
		m.Vertices[i].Tangent = mgl32.Vec4{1, 0, 0, 1}
	}
	return m
}

// Sphere returns a UV sphere.
func Sphere(radius float32, segments, rings int) *Mesh {
	m := &Mesh{}
	for r := 0; r <= rings; r++ {
		v := float32(r) / float32(rings)
		theta := v * math32.Pi
		for s := 0; s <= segments; s++ {
			u := float32(s) / float32(segments)
			phi := u * 2 * math32.Pi
			n := mgl32.Vec3{math32.Sin(theta) * math32.Cos(phi), math32.Cos(theta), math32.Sin(theta) * math32.Sin(phi)}
			m.Vertices = append(m.Vertices, Vertex{
				Position: n.Mul(radius),
				Normal:   n,
				Texcoord: mgl32.Vec2{u, v},
				Tangent:  mgl32.Vec4{-math32.Sin(phi), 0, math32.Cos(phi), 1},
			})
		}
	}
	stride := uint32(segments + 1)
	for r := uint32(0); r < uint32(rings); r++ {
		for s := uint32(0); s < uint32(segments); s++ {
			a := r*stride + s
			b := a + stride
			m.Indices = append(m.Indices, a, a+1, b, a+1, b+1, b)
		}
	}
	return m
}

// Tube returns an open cylinder along +Y bound to a chain of joints spaced evenly over its
// height. The returned mesh is a skinning prototype with its own skeleton.
func Tube(radius, height float32, segments, joints int) *Mesh {
	rings := joints * 2
	m := &Mesh{Skeleton: jointChain(height, joints)}
	spacing := height / float32(joints-1)

	for r := 0; r <= rings; r++ {
		v := float32(r) / float32(rings)
		y := v * height
		joints4, weights4 := chainWeights(y, spacing, joints)
		for s := 0; s <= segments; s++ {
			u := float32(s) / float32(segments)
			phi := u * 2 * math32.Pi
			n := mgl32.Vec3{math32.Cos(phi), 0, math32.Sin(phi)}
			m.Vertices = append(m.Vertices, Vertex{
				Position: mgl32.Vec3{n[0] * radius, y, n[2] * radius},
				Normal:   n,
				Texcoord: mgl32.Vec2{u, 1 - v},
				Tangent:  mgl32.Vec4{-n[2], 0, n[0], 1},
			})
			m.Skin = append(m.Skin, SkinWeights{Joints: joints4, Weights: weights4})
		}
	}
	stride := uint32(segments + 1)
	for r := uint32(0); r < uint32(rings); r++ {
		for s := uint32(0); s < uint32(segments); s++ {
			a := r*stride + s
			b := a + stride
			m.Indices = append(m.Indices, a, b, a+1, a+1, b, b+1)
		}
	}
	return m
}

// jointChain builds a straight chain of joints along +Y, each the parent of the next.
func jointChain(height float32, joints int) *Skeleton {
	spacing := height / float32(joints-1)
	sk := &Skeleton{Joints: make([]Joint, joints)}
	for i := range sk.Joints {
		rest := IdentityTransform()
		if i > 0 {
			rest.Translation = mgl32.Vec3{0, spacing, 0}
		}
		y := spacing * float32(i)
		sk.Joints[i] = Joint{
			Name:        fmt.Sprintf("joint%d", i),
			Parent:      i - 1,
			Rest:        rest,
			InverseBind: mgl32.Translate3D(0, -y, 0),
		}
	}
	return sk
}

// chainWeights blends a vertex at height y between the two nearest joints.
func chainWeights(y, spacing float32, joints int) ([4]uint32, [4]float32) {
	f := y / spacing
	j0 := min(int(math32.Floor(f)), joints-1)
	j1 := min(j0+1, joints-1)
	w1 := f - float32(j0)
	if j0 == j1 {
		w1 = 0
	}
	return [4]uint32{uint32(j0), uint32(j1), 0, 0}, [4]float32{1 - w1, w1, 0, 0}
}

func mul3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
