package scene

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GPU record sizes, matching the WGSL InstanceData and MaterialData structs.
const (
	InstanceDataSize = 144
	MaterialDataSize = 64
)

// InstanceFlagSkinned marks instances whose geometry is deformed every frame.
const InstanceFlagSkinned uint32 = 1

// InstanceData is the GPU representation of a MeshInstance.
// Layout:
//
//	offset   0: transform      mat4x4f
//	offset  64: prevTransform  mat4x4f
//	offset 128: materialIndex  u32
//	offset 132: meshIndex      u32
//	offset 136: flags          u32
//	offset 140: _pad0          u32
type InstanceData struct {
	Transform     mgl32.Mat4
	PrevTransform mgl32.Mat4
	MaterialIndex uint32
	MeshIndex     uint32
	Flags         uint32
}

// MarshalTo writes the record into buf, which must hold InstanceDataSize bytes.
func (d *InstanceData) MarshalTo(buf []byte) {
	putFloats(buf[0:], d.Transform[:])
	putFloats(buf[64:], d.PrevTransform[:])
	binary.LittleEndian.PutUint32(buf[128:], d.MaterialIndex)
	binary.LittleEndian.PutUint32(buf[132:], d.MeshIndex)
	binary.LittleEndian.PutUint32(buf[136:], d.Flags)
	binary.LittleEndian.PutUint32(buf[140:], 0)
}

// MaterialData is the GPU representation of a Material.
// Layout:
//
//	offset  0: baseColor    vec4f
//	offset 16: atlasRect    vec4f
//	offset 32: emissive     vec3f
//	offset 44: roughness    f32
//	offset 48: metalness    f32
//	offset 52: alphaCutoff  f32
//	offset 56: flags        u32
//	offset 60: _pad0        u32
type MaterialData struct {
	BaseColor   mgl32.Vec4
	AtlasRect   mgl32.Vec4
	Emissive    mgl32.Vec3
	Roughness   float32
	Metalness   float32
	AlphaCutoff float32
	Flags       uint32
}

// MarshalTo writes the record into buf, which must hold MaterialDataSize bytes.
func (d *MaterialData) MarshalTo(buf []byte) {
	putFloats(buf[0:], d.BaseColor[:])
	putFloats(buf[16:], d.AtlasRect[:])
	putFloats(buf[32:], d.Emissive[:])
	putFloats(buf[44:], []float32{d.Roughness, d.Metalness, d.AlphaCutoff})
	binary.LittleEndian.PutUint32(buf[56:], d.Flags)
	binary.LittleEndian.PutUint32(buf[60:], 0)
}

func (m *Material) gpuData() MaterialData {
	d := MaterialData{
		BaseColor:   m.BaseColor,
		AtlasRect:   m.AtlasRect,
		Emissive:    m.Emissive,
		Roughness:   m.Roughness,
		Metalness:   m.Metalness,
		AlphaCutoff: m.AlphaCutoff,
	}
	if m.AlphaTested {
		d.Flags |= MaterialFlagAlphaTested
	}
	return d
}

// MarshalInstances encodes instances in order.
func MarshalInstances(instances []MeshInstance, skinned []SkinnedInstance) []byte {
	buf := make([]byte, len(instances)*InstanceDataSize)
	flags := make([]uint32, len(instances))
	for _, s := range skinned {
		flags[s.InstanceIndex] |= InstanceFlagSkinned
	}
	for i, inst := range instances {
		d := InstanceData{
			Transform:     inst.Transform,
			PrevTransform: inst.PrevTransform,
			MaterialIndex: uint32(inst.MaterialIndex),
			MeshIndex:     uint32(inst.MeshIndex),
			Flags:         flags[i],
		}
		d.MarshalTo(buf[i*InstanceDataSize:])
	}
	return buf
}

// MarshalMaterials encodes materials in order.
func MarshalMaterials(materials []Material) []byte {
	buf := make([]byte, len(materials)*MaterialDataSize)
	for i := range materials {
		d := materials[i].gpuData()
		d.MarshalTo(buf[i*MaterialDataSize:])
	}
	return buf
}

// MarshalVertices encodes vertices with VertexStride bytes each.
func MarshalVertices(vertices []Vertex) []byte {
	buf := make([]byte, len(vertices)*VertexStride)
	for i, v := range vertices {
		o := buf[i*VertexStride:]
		putFloats(o[0:], v.Position[:])
		putFloats(o[12:], v.Normal[:])
		putFloats(o[24:], v.Texcoord[:])
		putFloats(o[32:], v.Tangent[:])
	}
	return buf
}

func putFloats(buf []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}
