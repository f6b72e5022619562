package scene

import (
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// DrawItem is the draw descriptor of one instance: which mesh range, material and buffers
// it uses, how far it is from the camera and which faces are culled.
type DrawItem struct {
	Instance int
	Mesh     int
	Material int

	// IndexCount, FirstIndex and BaseVertex locate the geometry in Buffers.
	IndexCount uint32
	FirstIndex uint32
	BaseVertex int32
	Buffers    Buffers

	// Distance is measured from the eye to the centre of the instance's world bounds.
	Distance    float32
	Cull        gpu.CullMode
	AlphaTested bool
}

// CullModeFor returns the faces a material discards. Double-sided and alpha-tested
// materials keep back faces.
func CullModeFor(m Material) gpu.CullMode {
	if m.DoubleSided || m.AlphaTested {
		return gpu.CullNone
	}
	return gpu.CullBack
}

// BuildDrawItems lists the draws of s in scene order. Nothing is sorted: the scene is opaque
// and order only affects overdraw. Skinning prototypes and instances of unknown meshes are
// left out.
//
// Parameters:
//   - s: the scene, already uploaded
//   - eye: the camera position used for Distance
//
// Returns:
//   - []DrawItem: one item per drawable instance
func BuildDrawItems(s Scene, eye mgl32.Vec3) []DrawItem {
	b := s.Buffers()
	meshes, materials := s.Meshes(), s.Materials()
	instances := s.Instances()
	items := make([]DrawItem, 0, len(instances))
	for i, inst := range instances {
		if inst.MeshIndex < 0 || inst.MeshIndex >= len(meshes) {
			continue
		}
		mesh := meshes[inst.MeshIndex]
		if mesh.IsSkinningPrototype() {
			continue
		}
		var m Material
		if inst.MaterialIndex >= 0 && inst.MaterialIndex < len(materials) {
			m = materials[inst.MaterialIndex]
		}
		center := mesh.Bounds.Min.Add(mesh.Bounds.Max).Mul(0.5)
		world := inst.Transform.Mul4x1(center.Vec4(1)).Vec3()
		items = append(items, DrawItem{
			Instance:    i,
			Mesh:        inst.MeshIndex,
			Material:    inst.MaterialIndex,
			IndexCount:  uint32(len(mesh.Indices)),
			FirstIndex:  mesh.IndexOffset,
			BaseVertex:  int32(mesh.VertexOffset),
			Buffers:     b,
			Distance:    world.Sub(eye).Len(),
			Cull:        CullModeFor(m),
			AlphaTested: m.AlphaTested,
		})
	}
	return items
}

// DrawItems binds the shared vertex and index buffers and issues one indexed draw per item.
// The instance index is passed as the first instance so shaders can fetch the instance
// record. When bind is set it runs before each draw, and an error skips that draw.
func DrawItems(rp renderer.RenderPass, items []DrawItem, bind func(d DrawItem) error) int {
	if len(items) == 0 {
		return 0
	}
	rp.SetVertexBuffer(0, items[0].Buffers.Vertices)
	rp.SetIndexBuffer(items[0].Buffers.Indices)
	draws := 0
	for _, d := range items {
		if bind != nil {
			if err := bind(d); err != nil {
				continue
			}
		}
		rp.DrawIndexed(d.IndexCount, 1, d.FirstIndex, d.BaseVertex, uint32(d.Instance))
		draws++
	}
	return draws
}

// DrawInstances draws every instance of s in scene order without per-draw state changes.
func DrawInstances(rp renderer.RenderPass, s Scene) int {
	return DrawItems(rp, BuildDrawItems(s, mgl32.Vec3{}), nil)
}
