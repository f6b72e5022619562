package scene

import (
	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/go-gl/mathgl/mgl32"
)

// VertexStride is the size in bytes of one Vertex, matching the WGSL VertexInput layout.
const VertexStride = 48

// Vertex is the interleaved vertex shared by every producer.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Texcoord mgl32.Vec2
	Tangent  mgl32.Vec4
}

// SkinWeights binds a vertex to up to four joints.
type SkinWeights struct {
	Joints  [4]uint32
	Weights [4]float32
}

// Mesh is indexed triangle geometry. A mesh with skin weights is a skinning prototype: it is
// never instanced directly, skinned instances deform a private copy of it instead.
type Mesh struct {
	Name          string
	Vertices      []Vertex
	Indices       []uint32
	Skin          []SkinWeights
	Skeleton      *Skeleton
	MaterialIndex int
	Bounds        common.AABB

	// VertexOffset and IndexOffset locate the mesh in the shared scene buffers.
	VertexOffset uint32
	IndexOffset  uint32
}

// IsSkinningPrototype reports whether the mesh only serves as the rest pose of skinned instances.
func (m *Mesh) IsSkinningPrototype() bool {
	return len(m.Skin) > 0
}

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// recomputeBounds refreshes Bounds from the vertex positions.
func (m *Mesh) recomputeBounds() {
	b := common.EmptyAABB()
	for _, v := range m.Vertices {
		b = b.Extend(v.Position)
	}
	m.Bounds = b
}

// Material flags, matching the WGSL MATERIAL_* constants.
const (
	MaterialFlagAlphaTested uint32 = 1
)

// Material describes the surface of a mesh. Texture names a procedural pattern placed in
// the scene's texture atlas; an empty name leaves the material untextured.
type Material struct {
	Name        string
	BaseColor   mgl32.Vec4
	Emissive    mgl32.Vec3
	Roughness   float32
	Metalness   float32
	AlphaCutoff float32
	AlphaTested bool
	DoubleSided bool
	Texture     string

	// AtlasRect is the offset (xy) and scale (zw) of the material's tile in the atlas.
	AtlasRect mgl32.Vec4
}

// Transform is a translation, rotation and scale.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

// IdentityTransform returns the transform that changes nothing.
func IdentityTransform() Transform {
	return Transform{Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}}
}

// Matrix returns T * R * S.
func (t Transform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2]).
		Mul4(t.Rotation.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

// MeshInstance places a mesh in the world.
type MeshInstance struct {
	Name          string
	MeshIndex     int
	MaterialIndex int
	// Base is the placement from the scene description; animations apply on top of it.
	Base          Transform
	Transform     mgl32.Mat4
	PrevTransform mgl32.Mat4
}

// Skeleton is a joint hierarchy in bind pose. Parents precede their children.
type Skeleton struct {
	Joints []Joint
}

// Joint is one bone of a skeleton.
type Joint struct {
	Name   string
	Parent int
	// Rest is the joint's local transform relative to its parent in bind pose.
	Rest        Transform
	InverseBind mgl32.Mat4
}

// SkinnedInstance is an instance whose geometry is deformed on the CPU every frame its pose
// changes. MeshIndex is the deformed copy, PrototypeIndex the rest pose it was copied from.
type SkinnedInstance struct {
	Name           string
	InstanceIndex  int
	MeshIndex      int
	PrototypeIndex int
	// Pose holds the animated local transform of each joint.
	Pose []Transform
	// LastUpdateFrame is the frame whose pose was last written into the mesh.
	LastUpdateFrame uint32
	dirty           bool
}

// VectorKey is a keyframe of a translation or scale channel.
type VectorKey struct {
	Time  float32
	Value mgl32.Vec3
}

// RotationKey is a keyframe of a rotation channel.
type RotationKey struct {
	Time  float32
	Value mgl32.Quat
}

// Channel animates the transform of an instance, or one joint of a skinned instance when
// Joint is not negative.
type Channel struct {
	Target      int
	Joint       int
	Translation []VectorKey
	Rotation    []RotationKey
	Scale       []VectorKey
}

// Animation is a looping set of channels.
type Animation struct {
	Name     string
	Duration float32
	Channels []Channel
}
