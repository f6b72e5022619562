package targets

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/log"
)

var logger = log.New("targets")

// ErrInvalidSize is returned by Create when a size is zero or the render size exceeds the output size.
var ErrInvalidSize = errors.New("targets: invalid size")

// Surface names one render target of the set.
type Surface int

// Paired surfaces come first. Each has a current and a previous frame texture.
const (
	Depth Surface = iota
	Albedo
	Specular
	Normals
	GeoNormals
	Emissive
	// DeviceDepth is the depth attachment written by the raster passes. Reverse-Z, cleared to 0.
	DeviceDepth
	MotionVectors
	HDRColor
	ResolvedColor
	Feedback1
	Feedback2
	LDRColor
	surfaceCount
)

const pairedCount = DeviceDepth

var surfaceNames = [surfaceCount]string{
	Depth:         "Depth",
	Albedo:        "GBufferAlbedo",
	Specular:      "GBufferSpecular",
	Normals:       "GBufferNormals",
	GeoNormals:    "GBufferGeoNormals",
	Emissive:      "GBufferEmissive",
	DeviceDepth:   "DeviceDepth",
	MotionVectors: "MotionVectors",
	HDRColor:      "HdrColor",
	ResolvedColor: "ResolvedColor",
	Feedback1:     "TemporalFeedback1",
	Feedback2:     "TemporalFeedback2",
	LDRColor:      "LdrColor",
}

func (s Surface) String() string {
	if s < 0 || s >= surfaceCount {
		return fmt.Sprintf("Surface(%d)", int(s))
	}
	return surfaceNames[s]
}

// Paired reports whether the surface has a previous frame twin.
func (s Surface) Paired() bool {
	return s >= 0 && s < pairedCount
}

// outputSized surfaces are allocated at the output size, everything else at the render size.
func (s Surface) outputSized() bool {
	switch s {
	case ResolvedColor, Feedback1, Feedback2, LDRColor:
		return true
	}
	return false
}

type surfaceFormat struct {
	format gpu.TextureFormat
	usage  gpu.TextureUsage
}

var formats = [surfaceCount]surfaceFormat{
	Depth:         {gpu.FormatR32Float, gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	Albedo:        {gpu.FormatRGBA8Unorm, gpu.TextureUsageRenderTarget | gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	Specular:      {gpu.FormatRGBA8Unorm, gpu.TextureUsageRenderTarget | gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	Normals:       {gpu.FormatRGBA16Float, gpu.TextureUsageRenderTarget | gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	GeoNormals:    {gpu.FormatRGBA16Float, gpu.TextureUsageRenderTarget | gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	Emissive:      {gpu.FormatRGBA16Float, gpu.TextureUsageRenderTarget | gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	DeviceDepth:   {gpu.FormatDepth32Float, gpu.TextureUsageRenderTarget | gpu.TextureUsageSampled},
	MotionVectors: {gpu.FormatRGBA16Float, gpu.TextureUsageRenderTarget | gpu.TextureUsageSampled},
	HDRColor:      {gpu.FormatRGBA16Float, gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	ResolvedColor: {gpu.FormatRGBA16Float, gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	Feedback1:     {gpu.FormatRGBA16Float, gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	Feedback2:     {gpu.FormatRGBA16Float, gpu.TextureUsageStorage | gpu.TextureUsageSampled},
	LDRColor:      {gpu.FormatRGBA8Unorm, gpu.TextureUsageStorage | gpu.TextureUsageSampled},
}

// Format returns the texture format of the surface.
func (s Surface) Format() gpu.TextureFormat {
	return formats[s].format
}

// targetSet is the implementation of the RenderTargets interface.
//
// Textures live in an arena. Paired surfaces own two arena slots and two indices into it;
// NextFrame exchanges the indices and never touches the textures.
type targetSet struct {
	mu *sync.Mutex

	renderer   renderer.Renderer
	renderSize common.Extent
	outputSize common.Extent

	arena    []gpu.Texture
	slots    [surfaceCount]int
	previous [pairedCount]int

	generation uint64
	created    int
}

// RenderTargets defines the interface for the per-resolution GPU surfaces of a frame.
//
// It owns the depth buffer and G-buffer channels with their previous frame twins, the
// device depth attachment, motion vectors, HDR color, the resolved color, two temporal
// feedback buffers and the low dynamic range presentation color. Every surface is sized
// to the render size except ResolvedColor, the feedback buffers and LDRColor, which are
// sized to the output size.
type RenderTargets interface {
	// Create releases any existing surfaces and allocates the full set.
	//
	// Parameters:
	//   - renderSize: the internal render resolution
	//   - outputSize: the presentation resolution, no smaller than renderSize
	//
	// Returns:
	//   - error: ErrInvalidSize for a zero or inverted size, or the texture creation error
	Create(renderSize, outputSize common.Extent) error

	// NextFrame exchanges the current and previous texture of every paired surface.
	// Binding sets built before the call still reference the old roles and must be
	// rebuilt, which callers detect through Generation.
	NextFrame()

	// IsResizeRequired reports whether the set must be recreated for the requested sizes.
	//
	// Parameters:
	//   - renderSize: the requested render resolution
	//   - outputSize: the requested output resolution
	//
	// Returns:
	//   - bool: true if nothing is allocated or either size differs
	IsResizeRequired(renderSize, outputSize common.Extent) bool

	// Allocated reports whether Create has succeeded since the last Release.
	//
	// Returns:
	//   - bool: true if the surfaces exist
	Allocated() bool

	// Generation changes on every Create and NextFrame.
	//
	// Returns:
	//   - uint64: the binding generation
	Generation() uint64

	// Creations returns how many times the set has been allocated.
	//
	// Returns:
	//   - int: the allocation count
	Creations() int

	// RenderSize returns the allocated render resolution.
	//
	// Returns:
	//   - common.Extent: the render size
	RenderSize() common.Extent

	// OutputSize returns the allocated output resolution.
	//
	// Returns:
	//   - common.Extent: the output size
	OutputSize() common.Extent

	// Texture returns the current texture of a surface.
	//
	// Parameters:
	//   - s: the surface
	//
	// Returns:
	//   - gpu.Texture: the texture, nil before Create
	Texture(s Surface) gpu.Texture

	// Previous returns the previous frame texture of a paired surface.
	//
	// Parameters:
	//   - s: a paired surface
	//
	// Returns:
	//   - gpu.Texture: the texture, nil before Create or for an unpaired surface
	Previous(s Surface) gpu.Texture

	// GBufferFramebuffer returns the render pass that fills the current G-buffer channels
	// against the device depth attachment.
	//
	// Returns:
	//   - renderer.RenderPassDescriptor: the fill pass with clears enabled
	GBufferFramebuffer() renderer.RenderPassDescriptor

	// Release destroys every surface.
	Release()
}

var _ RenderTargets = &targetSet{}

// NewRenderTargets creates an empty set. Nothing is allocated until Create.
//
// Parameters:
//   - r: the renderer that owns the textures
//
// Returns:
//   - RenderTargets: the empty set
func NewRenderTargets(r renderer.Renderer) RenderTargets {
	return &targetSet{
		mu:       &sync.Mutex{},
		renderer: r,
	}
}

func (t *targetSet) Create(renderSize, outputSize common.Extent) error {
	if renderSize.IsZero() || outputSize.IsZero() {
		return fmt.Errorf("%w: render %s, output %s", ErrInvalidSize, renderSize, outputSize)
	}
	if !renderSize.Fits(outputSize) {
		return fmt.Errorf("%w: render %s exceeds output %s", ErrInvalidSize, renderSize, outputSize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.release()

	arena := make([]gpu.Texture, 0, surfaceCount+pairedCount)
	alloc := func(s Surface, suffix string) (int, error) {
		size := renderSize
		if s.outputSized() {
			size = outputSize
		}
		tex, err := t.renderer.CreateTexture(gpu.TextureDescriptor{
			Label:  s.String() + suffix,
			Width:  size.Width,
			Height: size.Height,
			Format: formats[s].format,
			Usage:  formats[s].usage,
		})
		if err != nil {
			return 0, fmt.Errorf("targets: create %s: %w", s, err)
		}
		arena = append(arena, tex)
		return len(arena) - 1, nil
	}

	var slots [surfaceCount]int
	var previous [pairedCount]int
	for s := Surface(0); s < surfaceCount; s++ {
		idx, err := alloc(s, "")
		if err != nil {
			releaseAll(arena)
			return err
		}
		slots[s] = idx
		if s.Paired() {
			prev, err := alloc(s, "Previous")
			if err != nil {
				releaseAll(arena)
				return err
			}
			previous[s] = prev
		}
	}

	t.arena = arena
	t.slots = slots
	t.previous = previous
	t.renderSize = renderSize
	t.outputSize = outputSize
	t.generation++
	t.created++
	logger.Noticef("allocated %d surfaces, render %s, output %s", len(arena), renderSize, outputSize)
	return nil
}

func releaseAll(arena []gpu.Texture) {
	for _, tex := range arena {
		tex.Release()
	}
}

func (t *targetSet) NextFrame() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.arena == nil {
		return
	}
	for s := Surface(0); s < pairedCount; s++ {
		t.slots[s], t.previous[s] = t.previous[s], t.slots[s]
	}
	t.generation++
}

func (t *targetSet) IsResizeRequired(renderSize, outputSize common.Extent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.arena == nil || t.renderSize != renderSize || t.outputSize != outputSize
}

func (t *targetSet) Allocated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.arena != nil
}

func (t *targetSet) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

func (t *targetSet) Creations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.created
}

func (t *targetSet) RenderSize() common.Extent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderSize
}

func (t *targetSet) OutputSize() common.Extent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outputSize
}

func (t *targetSet) Texture(s Surface) gpu.Texture {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.arena == nil || s < 0 || s >= surfaceCount {
		return nil
	}
	return t.arena[t.slots[s]]
}

func (t *targetSet) Previous(s Surface) gpu.Texture {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.arena == nil || !s.Paired() {
		return nil
	}
	return t.arena[t.previous[s]]
}

func (t *targetSet) GBufferFramebuffer() renderer.RenderPassDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	desc := renderer.RenderPassDescriptor{Label: "GBufferFill"}
	if t.arena == nil {
		return desc
	}
	for _, s := range []Surface{Albedo, Specular, Normals, GeoNormals, Emissive} {
		desc.ColorAttachments = append(desc.ColorAttachments, renderer.ColorAttachment{
			Texture: t.arena[t.slots[s]],
			Clear:   true,
		})
	}
	desc.Depth = &renderer.DepthAttachment{
		Texture:    t.arena[t.slots[DeviceDepth]],
		Clear:      true,
		ClearValue: 0,
	}
	return desc
}

func (t *targetSet) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release()
}

func (t *targetSet) release() {
	if t.arena == nil {
		return
	}
	releaseAll(t.arena)
	t.arena = nil
	t.renderSize = common.Extent{}
	t.outputSize = common.Extent{}
}
