package accel

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GPU record sizes, matching the WGSL BVHNode, TLASInstance and MeshRecord structs.
const (
	NodeSize         = 32
	TLASInstanceSize = 144
	MeshRecordSize   = 16
	// TriangleSize is three vec4f, one per corner.
	TriangleSize = 48
)

// Instance flags.
const (
	InstanceFlagOpaque uint32 = 1
)

// MarshalTo writes the node into buf, which must hold NodeSize bytes.
// Layout:
//
//	offset  0: boundsMin  vec3f
//	offset 12: leftFirst  u32
//	offset 16: boundsMax  vec3f
//	offset 28: count      u32
func (n *Node) MarshalTo(buf []byte) {
	putFloats(buf[0:], n.Min[:])
	binary.LittleEndian.PutUint32(buf[12:], n.LeftFirst)
	putFloats(buf[16:], n.Max[:])
	binary.LittleEndian.PutUint32(buf[28:], n.Count)
}

// TLASInstance places one BLAS in the world.
// Layout:
//
//	offset   0: worldToObject  mat4x4f
//	offset  64: objectToWorld  mat4x4f
//	offset 128: meshIndex      u32
//	offset 132: instanceIndex  u32
//	offset 136: mask           u32
//	offset 140: flags          u32
type TLASInstance struct {
	WorldToObject mgl32.Mat4
	ObjectToWorld mgl32.Mat4
	MeshIndex     uint32
	InstanceIndex uint32
	Mask          uint32
	Flags         uint32
}

// MarshalTo writes the instance into buf, which must hold TLASInstanceSize bytes.
func (t *TLASInstance) MarshalTo(buf []byte) {
	putFloats(buf[0:], t.WorldToObject[:])
	putFloats(buf[64:], t.ObjectToWorld[:])
	binary.LittleEndian.PutUint32(buf[128:], t.MeshIndex)
	binary.LittleEndian.PutUint32(buf[132:], t.InstanceIndex)
	binary.LittleEndian.PutUint32(buf[136:], t.Mask)
	binary.LittleEndian.PutUint32(buf[140:], t.Flags)
}

// MeshRecord holds a mesh's element offsets into the shared node, triangle, vertex and index arrays.
type MeshRecord struct {
	NodeOffset     uint32
	TriangleOffset uint32
	VertexOffset   uint32
	IndexOffset    uint32
}

// MarshalTo writes the record into buf, which must hold MeshRecordSize bytes.
func (m *MeshRecord) MarshalTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], m.NodeOffset)
	binary.LittleEndian.PutUint32(buf[4:], m.TriangleOffset)
	binary.LittleEndian.PutUint32(buf[8:], m.VertexOffset)
	binary.LittleEndian.PutUint32(buf[12:], m.IndexOffset)
}

func marshalNodes(nodes []Node) []byte {
	buf := make([]byte, len(nodes)*NodeSize)
	for i := range nodes {
		nodes[i].MarshalTo(buf[i*NodeSize:])
	}
	return buf
}

// marshalTriangles writes three vec4f per triangle. The w of the first corner carries the
// triangle's index in the mesh's index buffer as raw bits.
func marshalTriangles(tris []Triangle) []byte {
	buf := make([]byte, len(tris)*TriangleSize)
	for i, t := range tris {
		o := buf[i*TriangleSize:]
		putFloats(o[0:], t.V0[:])
		binary.LittleEndian.PutUint32(o[12:], t.Index)
		putFloats(o[16:], t.V1[:])
		putFloats(o[32:], t.V2[:])
	}
	return buf
}

func putFloats(buf []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}
