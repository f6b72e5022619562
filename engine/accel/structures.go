package accel

import (
	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	blasLeafSize = 4
	tlasLeafSize = 2
	// instanceMask is the visibility mask of every instance; the trace shader tests bit 0.
	instanceMask uint32 = 1
)

// Triangle is one BLAS primitive in object space. Index is its position in the mesh's
// index buffer divided by three.
type Triangle struct {
	V0, V1, V2 mgl32.Vec3
	Index      uint32
}

// BLAS is the bottom level structure of one mesh.
type BLAS struct {
	MeshIndex int
	BVH       BVH
	// Triangles are stored in leaf order so leaves address them by LeftFirst.
	Triangles []Triangle
	// Dynamic structures belong to skinned instances, are rebuilt when the pose changes
	// and are never compacted.
	Dynamic   bool
	Compacted bool
	// SourceFrame is the LastUpdateFrame of the skinned instance the structure was built from.
	SourceFrame uint32
}

// NodeReservation is the number of node slots the structure occupies in the shared node
// buffer. Dynamic structures reserve the worst case so rebuilds fit in place.
func (b *BLAS) NodeReservation() int {
	if b.Dynamic {
		return 2*len(b.Triangles) - 1
	}
	return len(b.BVH.Nodes)
}

// Bounds returns the object space bounds of the structure.
func (b *BLAS) Bounds() common.AABB {
	if len(b.BVH.Nodes) == 0 {
		return common.EmptyAABB()
	}
	return b.BVH.Nodes[0].Bounds()
}

// BuildBLAS builds the bottom level structure of a mesh.
//
// Parameters:
//   - meshIndex: the index of the mesh in the scene
//   - m: the mesh
//   - dynamic: true for the deformed copy of a skinned instance
//
// Returns:
//   - *BLAS: the structure
func BuildBLAS(meshIndex int, m *scene.Mesh, dynamic bool) *BLAS {
	count := m.TriangleCount()
	tris := make([]Triangle, count)
	prims := make([]Primitive, count)
	for i := range tris {
		t := Triangle{
			V0:    m.Vertices[m.Indices[i*3]].Position,
			V1:    m.Vertices[m.Indices[i*3+1]].Position,
			V2:    m.Vertices[m.Indices[i*3+2]].Position,
			Index: uint32(i),
		}
		tris[i] = t
		box := common.EmptyAABB().Extend(t.V0).Extend(t.V1).Extend(t.V2)
		prims[i] = Primitive{Bounds: box, Centroid: t.V0.Add(t.V1).Add(t.V2).Mul(1.0 / 3)}
	}

	bvh := BuildBVH(prims, blasLeafSize)
	ordered := make([]Triangle, count)
	for slot, p := range bvh.Order {
		ordered[slot] = tris[p]
	}
	return &BLAS{
		MeshIndex: meshIndex,
		BVH:       bvh,
		Triangles: ordered,
		Dynamic:   dynamic,
	}
}

// TLAS is the top level structure. Instances are stored in leaf order; an instance's slot
// in Instances is the hit index reported by traversal.
type TLAS struct {
	BVH       BVH
	Instances []TLASInstance
}

// BuildTLAS instances every scene instance that has a bottom level structure.
//
// Parameters:
//   - instances: the scene instances with their current transforms
//   - materials: the scene materials, for the opaque flag
//   - blas: the bottom level structures by mesh index
//
// Returns:
//   - TLAS: the top level structure
func BuildTLAS(instances []scene.MeshInstance, materials []scene.Material, blas map[int]*BLAS) TLAS {
	records := make([]TLASInstance, 0, len(instances))
	prims := make([]Primitive, 0, len(instances))
	for i, inst := range instances {
		b, ok := blas[inst.MeshIndex]
		if !ok {
			continue
		}
		flags := InstanceFlagOpaque
		if inst.MaterialIndex >= 0 && inst.MaterialIndex < len(materials) && materials[inst.MaterialIndex].AlphaTested {
			flags = 0
		}
		records = append(records, TLASInstance{
			WorldToObject: inst.Transform.Inv(),
			ObjectToWorld: inst.Transform,
			MeshIndex:     uint32(inst.MeshIndex),
			InstanceIndex: uint32(i),
			Mask:          instanceMask,
			Flags:         flags,
		})
		box := b.Bounds().Transform(inst.Transform)
		prims = append(prims, Primitive{Bounds: box, Centroid: box.Center()})
	}

	bvh := BuildBVH(prims, tlasLeafSize)
	ordered := make([]TLASInstance, len(records))
	for slot, p := range bvh.Order {
		ordered[slot] = records[p]
	}
	return TLAS{BVH: bvh, Instances: ordered}
}
