package gpu

// ResourceState is the usage a resource is transitioned into by a Barrier.
type ResourceState int

const (
	StateUndefined ResourceState = iota
	StateShaderRead
	StateUnorderedAccess
	StateRenderTarget
	// StateAccelBuildInput is the state vertex and index buffers must be in while an
	// acceleration structure is built from them.
	StateAccelBuildInput
	StateCopyDst
	StatePresent
)

func (s ResourceState) String() string {
	switch s {
	case StateShaderRead:
		return "ShaderRead"
	case StateUnorderedAccess:
		return "UnorderedAccess"
	case StateRenderTarget:
		return "RenderTarget"
	case StateAccelBuildInput:
		return "AccelBuildInput"
	case StateCopyDst:
		return "CopyDst"
	case StatePresent:
		return "Present"
	default:
		return "Undefined"
	}
}

// Barrier transitions one texture or buffer between states. Exactly one of Texture or Buffer is set.
type Barrier struct {
	Texture Texture
	Buffer  Buffer
	Before  ResourceState
	After   ResourceState
}

// ResourceID returns the identity of the transitioned resource.
func (b Barrier) ResourceID() uint64 {
	if b.Texture != nil {
		return b.Texture.ID()
	}
	if b.Buffer != nil {
		return b.Buffer.ID()
	}
	return 0
}
