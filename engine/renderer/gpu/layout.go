package gpu

// ShaderStage is a bitmask of the stages a binding is visible to.
type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute
	// StageRayTracing covers ray generation, hit and miss stages.
	StageRayTracing
)

// BindingKind is the resource type expected at a binding slot.
type BindingKind int

const (
	BindingUniformBuffer BindingKind = iota
	BindingStorageBuffer
	BindingReadOnlyStorageBuffer
	BindingSampledTexture
	BindingDepthTexture
	BindingStorageTexture
	BindingSampler
	BindingComparisonSampler
	BindingAccelerationStructure
)

// SampleType is the component type a sampled texture binding returns.
type SampleType int

const (
	SampleFloat SampleType = iota
	SampleUnfilterableFloat
	SampleUint
	SampleSint
	SampleDepth
)

// BindingLayoutEntry describes one binding of a bind group layout as reflected from shader source.
type BindingLayoutEntry struct {
	Binding    uint32
	Name       string
	Kind       BindingKind
	Visibility ShaderStage
	// MinBindingSize is the reflected size of the bound struct, 0 for runtime sized arrays.
	MinBindingSize uint64
	// SampleType applies to sampled textures.
	SampleType SampleType
	// StorageFormat applies to storage textures.
	StorageFormat TextureFormat
	// StorageAccess applies to storage textures.
	StorageAccess StorageAccess
}

// StorageAccess is the access mode of a storage texture binding.
type StorageAccess int

const (
	AccessWriteOnly StorageAccess = iota
	AccessReadOnly
	AccessReadWrite
)

// BindGroupLayout is the ordered entries of one group index.
type BindGroupLayout struct {
	Group   uint32
	Entries []BindingLayoutEntry
}

// Entry returns the entry with the given binding number.
func (l BindGroupLayout) Entry(binding uint32) (BindingLayoutEntry, bool) {
	for _, e := range l.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return BindingLayoutEntry{}, false
}

// VertexFormat is the type of one vertex attribute.
type VertexFormat int

const (
	VertexFloat32 VertexFormat = iota
	VertexFloat32x2
	VertexFloat32x3
	VertexFloat32x4
	VertexUint32
	VertexUint32x4
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint64 {
	switch f {
	case VertexFloat32x2:
		return 8
	case VertexFloat32x3:
		return 12
	case VertexFloat32x4, VertexUint32x4:
		return 16
	default:
		return 4
	}
}

// VertexAttribute is one shader input location of a vertex buffer.
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint64
}

// VertexBufferLayout describes one interleaved vertex buffer.
type VertexBufferLayout struct {
	Stride     uint64
	Attributes []VertexAttribute
}

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// CompareFunction is a depth comparison.
type CompareFunction int

const (
	CompareAlways CompareFunction = iota
	CompareLess
	CompareGreater
	CompareGreaterEqual
)

// Topology is the primitive assembly mode.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyLineList
)
