package renderer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
)

// CommandKind identifies a command recorded by the headless backend.
type CommandKind int

const (
	CommandDispatch CommandKind = iota
	CommandTraceRays
	CommandRenderPass
	CommandDraw
	CommandDrawIndexed
	CommandBarrier
	CommandClear
)

func (k CommandKind) String() string {
	switch k {
	case CommandDispatch:
		return "Dispatch"
	case CommandTraceRays:
		return "TraceRays"
	case CommandRenderPass:
		return "RenderPass"
	case CommandDraw:
		return "Draw"
	case CommandDrawIndexed:
		return "DrawIndexed"
	case CommandBarrier:
		return "Barrier"
	default:
		return "Clear"
	}
}

// BindGroupRecord is a bind group as seen by a recorded command.
type BindGroupRecord struct {
	ID    uint64
	Label string
	// Resources holds the label of the resource at each binding, in binding order.
	Resources []string
}

// Command is one recorded GPU command.
type Command struct {
	Kind  CommandKind
	Label string
	// Pipeline is the cache key of the pipeline, name#defines.
	Pipeline   string
	BindGroups []BindGroupRecord
	// Size is the workgroup count of a dispatch or the launch grid of TraceRays.
	Size          [3]uint32
	Attachments   []string
	VertexBuffers []string
	IndexBuffer   string
	Count         uint32
	Instances     uint32
	First         uint32
	BaseVertex    int32
	FirstInstance uint32
	Barriers      []gpu.Barrier
}

// Recorder exposes the state kept by the headless backend.
type Recorder interface {
	// Frames returns the commands of every submitted command list since the last Reset.
	Frames() [][]Command

	// ReadBuffer returns a copy of the buffer's contents.
	ReadBuffer(buf gpu.Buffer) ([]byte, error)

	// LiveTextures returns the number of created and not yet released textures.
	LiveTextures() int

	// LiveBuffers returns the number of created and not yet released buffers.
	LiveBuffers() int

	// Presented returns the number of frames presented.
	Presented() int

	// Reset drops the recorded frames.
	Reset()
}

// AsRecorder returns the recorder of a renderer created with BackendTypeHeadless.
//
// Parameters:
//   - r: the renderer
//
// Returns:
//   - Recorder: the headless recorder
//   - bool: false if r is not a headless renderer
func AsRecorder(r Renderer) (Recorder, bool) {
	impl, ok := r.(*renderer)
	if !ok {
		return nil, false
	}
	h, ok := impl.backend.(*headlessRendererBackend)
	return h, ok
}

type headlessTexture struct {
	id       uint64
	desc     gpu.TextureDescriptor
	data     []byte
	backend  *headlessRendererBackend
	released bool
}

func (t *headlessTexture) ID() uint64                        { return t.id }
func (t *headlessTexture) Descriptor() gpu.TextureDescriptor { return t.desc }

func (t *headlessTexture) Release() {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	if !t.released {
		t.released = true
		t.backend.liveTextures--
	}
}

type headlessBuffer struct {
	id       uint64
	desc     gpu.BufferDescriptor
	data     []byte
	backend  *headlessRendererBackend
	released bool
}

func (b *headlessBuffer) ID() uint64                       { return b.id }
func (b *headlessBuffer) Descriptor() gpu.BufferDescriptor { return b.desc }

func (b *headlessBuffer) Release() {
	b.backend.mu.Lock()
	defer b.backend.mu.Unlock()
	if !b.released {
		b.released = true
		b.backend.liveBuffers--
	}
}

type headlessSampler struct {
	id   uint64
	desc gpu.SamplerDescriptor
}

func (s *headlessSampler) ID() uint64                        { return s.id }
func (s *headlessSampler) Descriptor() gpu.SamplerDescriptor { return s.desc }
func (s *headlessSampler) Release()                          {}

type headlessBindGroup struct {
	id      uint64
	label   string
	entries []gpu.BindGroupEntry
}

func (g *headlessBindGroup) ID() uint64                    { return g.id }
func (g *headlessBindGroup) Label() string                 { return g.label }
func (g *headlessBindGroup) Entries() []gpu.BindGroupEntry { return g.entries }
func (g *headlessBindGroup) Release()                      {}

func (g *headlessBindGroup) record() BindGroupRecord {
	rec := BindGroupRecord{ID: g.id, Label: g.label}
	for _, e := range g.entries {
		rec.Resources = append(rec.Resources, entryLabel(e))
	}
	return rec
}

func entryLabel(e gpu.BindGroupEntry) string {
	switch {
	case e.Buffer != nil:
		return e.Buffer.Descriptor().Label
	case e.Texture != nil:
		return e.Texture.Descriptor().Label
	case e.Sampler != nil:
		return e.Sampler.Descriptor().Label
	}
	return ""
}

// headlessPipeline is the handle stored on pipelines compiled by the headless backend.
type headlessPipeline struct {
	key string
}

// headlessRendererBackend executes nothing. It keeps buffer contents and records commands.
type headlessRendererBackend struct {
	mu       sync.Mutex
	features gpu.Features
	width    uint32
	height   uint32
	surface  *headlessTexture

	frames       [][]Command
	inFlight     *headlessCommandList
	presented    int
	liveTextures int
	liveBuffers  int
}

var _ RendererBackend = &headlessRendererBackend{}
var _ Recorder = &headlessRendererBackend{}

func newHeadlessRendererBackend(width, height uint32, features gpu.Features) *headlessRendererBackend {
	b := &headlessRendererBackend{features: features}
	b.ConfigureSurface(width, height)
	return b
}

func (b *headlessRendererBackend) Features() gpu.Features {
	return b.features
}

func (b *headlessRendererBackend) SurfaceFormat() gpu.TextureFormat {
	return gpu.FormatBGRA8UnormSrgb
}

func (b *headlessRendererBackend) SurfaceSize() (uint32, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *headlessRendererBackend) ConfigureSurface(width, height uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
	b.surface = &headlessTexture{
		id: nextID(),
		desc: gpu.TextureDescriptor{
			Label:  "surface",
			Width:  width,
			Height: height,
			Format: gpu.FormatBGRA8UnormSrgb,
			Usage:  gpu.TextureUsageRenderTarget,
		},
		backend: b,
	}
}

func (b *headlessRendererBackend) SetPresentMode(PresentMode) {}

func (b *headlessRendererBackend) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.liveTextures++
	return &headlessTexture{id: nextID(), desc: desc, backend: b}, nil
}

func (b *headlessRendererBackend) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.liveBuffers++
	return &headlessBuffer{id: nextID(), desc: desc, data: make([]byte, desc.Size), backend: b}, nil
}

func (b *headlessRendererBackend) CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	return &headlessSampler{id: nextID(), desc: desc}, nil
}

func (b *headlessRendererBackend) CreateBindGroup(p pipeline.Pipeline, group uint32, entries []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	for _, e := range entries {
		if released(e) {
			return nil, fmt.Errorf("%w: binding %d of %s group %d", gpu.ErrInvalidHandle, e.Binding, p.PipelineKey(), group)
		}
	}
	sorted := append([]gpu.BindGroupEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Binding < sorted[j].Binding
	})
	return &headlessBindGroup{
		id:      nextID(),
		label:   fmt.Sprintf("%s/%d", p.PipelineKey(), group),
		entries: sorted,
	}, nil
}

func released(e gpu.BindGroupEntry) bool {
	switch {
	case e.Buffer != nil:
		hb, ok := e.Buffer.(*headlessBuffer)
		return !ok || hb.released
	case e.Texture != nil:
		ht, ok := e.Texture.(*headlessTexture)
		return !ok || ht.released
	}
	return false
}

func (b *headlessRendererBackend) CompilePipeline(p pipeline.Pipeline) error {
	p.SetHandle(&headlessPipeline{key: pipeline.CacheKey(p.PipelineKey(), p.Defines())})
	return nil
}

func (b *headlessRendererBackend) ReleasePipeline(pipeline.Pipeline) {}

func (b *headlessRendererBackend) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	hb, ok := buf.(*headlessBuffer)
	if !ok || hb.released {
		return fmt.Errorf("%w: write to %s", gpu.ErrInvalidHandle, buf.Descriptor().Label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(hb.data[offset:], data)
	return nil
}

func (b *headlessRendererBackend) WriteTexture(tex gpu.Texture, data []byte) error {
	ht, ok := tex.(*headlessTexture)
	if !ok || ht.released {
		return fmt.Errorf("%w: write to %s", gpu.ErrInvalidHandle, tex.Descriptor().Label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ht.data = append(ht.data[:0], data...)
	return nil
}

func (b *headlessRendererBackend) BeginFrame() (CommandList, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight != nil {
		return nil, errors.New("renderer: previous frame not yet presented")
	}
	b.inFlight = &headlessCommandList{backend: b, surface: b.surface}
	return b.inFlight, nil
}

func (b *headlessRendererBackend) Submit(cl CommandList) error {
	hcl, ok := cl.(*headlessCommandList)
	if !ok {
		return fmt.Errorf("%w: foreign command list", gpu.ErrInvalidHandle)
	}
	if hcl.openPass != nil {
		return errors.New("renderer: submit with an open render pass")
	}
	if hcl.submitted {
		return errors.New("renderer: command list submitted twice")
	}
	hcl.submitted = true

	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, hcl.commands)
	return nil
}

func (b *headlessRendererBackend) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight == nil {
		return errors.New("renderer: present without a frame")
	}
	b.inFlight = nil
	b.presented++
	return nil
}

func (b *headlessRendererBackend) WaitIdle() {}

func (b *headlessRendererBackend) Release() {}

func (b *headlessRendererBackend) Frames() [][]Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]Command(nil), b.frames...)
}

func (b *headlessRendererBackend) ReadBuffer(buf gpu.Buffer) ([]byte, error) {
	hb, ok := buf.(*headlessBuffer)
	if !ok {
		return nil, fmt.Errorf("%w: read of %s", gpu.ErrInvalidHandle, buf.Descriptor().Label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), hb.data...), nil
}

func (b *headlessRendererBackend) LiveTextures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.liveTextures
}

func (b *headlessRendererBackend) LiveBuffers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.liveBuffers
}

func (b *headlessRendererBackend) Presented() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presented
}

func (b *headlessRendererBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
}

type headlessCommandList struct {
	backend   *headlessRendererBackend
	surface   *headlessTexture
	commands  []Command
	openPass  *headlessRenderPass
	submitted bool
}

func (l *headlessCommandList) Surface() gpu.Texture {
	return l.surface
}

func (l *headlessCommandList) checkOpen() error {
	if l.openPass != nil {
		return fmt.Errorf("renderer: render pass %q still open", l.openPass.label)
	}
	return nil
}

func (l *headlessCommandList) Dispatch(p pipeline.Pipeline, groups []gpu.BindGroup, x, y, z uint32) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	if err := checkCompiled(p, pipeline.PipelineTypeCompute); err != nil {
		return err
	}
	l.commands = append(l.commands, Command{
		Kind:       CommandDispatch,
		Label:      p.PipelineKey(),
		Pipeline:   p.Handle().(*headlessPipeline).key,
		BindGroups: recordGroups(groups),
		Size:       [3]uint32{x, y, z},
	})
	return nil
}

func (l *headlessCommandList) TraceRays(p pipeline.Pipeline, groups []gpu.BindGroup, width, height uint32) error {
	if !l.backend.features.RayTracingPipeline {
		return fmt.Errorf("trace rays: %w", gpu.ErrFeatureUnsupported)
	}
	if err := l.checkOpen(); err != nil {
		return err
	}
	if err := checkCompiled(p, pipeline.PipelineTypeRayTracing); err != nil {
		return err
	}
	l.commands = append(l.commands, Command{
		Kind:       CommandTraceRays,
		Label:      p.PipelineKey(),
		Pipeline:   p.Handle().(*headlessPipeline).key,
		BindGroups: recordGroups(groups),
		Size:       [3]uint32{width, height, 1},
	})
	return nil
}

func (l *headlessCommandList) BeginRenderPass(desc RenderPassDescriptor) (RenderPass, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	if err := checkRenderPass(desc); err != nil {
		return nil, err
	}
	cmd := Command{Kind: CommandRenderPass, Label: desc.Label}
	for _, a := range desc.ColorAttachments {
		cmd.Attachments = append(cmd.Attachments, a.Texture.Descriptor().Label)
	}
	if desc.Depth != nil {
		cmd.Attachments = append(cmd.Attachments, desc.Depth.Texture.Descriptor().Label)
	}
	l.commands = append(l.commands, cmd)
	l.openPass = &headlessRenderPass{list: l, label: desc.Label, groups: map[uint32]gpu.BindGroup{}, vertex: map[uint32]gpu.Buffer{}}
	return l.openPass, nil
}

func (l *headlessCommandList) Barrier(barriers ...gpu.Barrier) {
	if len(barriers) == 0 {
		return
	}
	l.commands = append(l.commands, Command{
		Kind:     CommandBarrier,
		Barriers: append([]gpu.Barrier(nil), barriers...),
	})
}

func (l *headlessCommandList) ClearTexture(tex gpu.Texture) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	if err := checkClear(tex); err != nil {
		return err
	}
	l.commands = append(l.commands, Command{Kind: CommandClear, Label: tex.Descriptor().Label})
	return nil
}

func recordGroups(groups []gpu.BindGroup) []BindGroupRecord {
	out := make([]BindGroupRecord, 0, len(groups))
	for _, g := range groups {
		if hg, ok := g.(*headlessBindGroup); ok {
			out = append(out, hg.record())
		} else {
			out = append(out, BindGroupRecord{ID: g.ID(), Label: g.Label()})
		}
	}
	return out
}

type headlessRenderPass struct {
	list     *headlessCommandList
	label    string
	pipeline pipeline.Pipeline
	groups   map[uint32]gpu.BindGroup
	vertex   map[uint32]gpu.Buffer
	index    gpu.Buffer
	err      error
}

func (p *headlessRenderPass) SetPipeline(pl pipeline.Pipeline) error {
	if err := checkCompiled(pl, pipeline.PipelineTypeRender); err != nil {
		if p.err == nil {
			p.err = err
		}
		return err
	}
	p.pipeline = pl
	return nil
}

func (p *headlessRenderPass) SetBindGroup(index uint32, g gpu.BindGroup) {
	p.groups[index] = g
}

func (p *headlessRenderPass) SetVertexBuffer(slot uint32, buf gpu.Buffer) {
	p.vertex[slot] = buf
}

func (p *headlessRenderPass) SetIndexBuffer(buf gpu.Buffer) {
	p.index = buf
}

func (p *headlessRenderPass) draw(kind CommandKind) Command {
	cmd := Command{Kind: kind, Label: p.label}
	if p.pipeline == nil {
		if p.err == nil {
			p.err = fmt.Errorf("renderer: draw in %q without a pipeline", p.label)
		}
		return cmd
	}
	cmd.Pipeline = p.pipeline.Handle().(*headlessPipeline).key
	groups := make([]gpu.BindGroup, 0, len(p.groups))
	for i := uint32(0); i < uint32(len(p.groups)); i++ {
		if g, ok := p.groups[i]; ok {
			groups = append(groups, g)
		}
	}
	cmd.BindGroups = recordGroups(groups)
	for i := uint32(0); i < uint32(len(p.vertex)); i++ {
		if v, ok := p.vertex[i]; ok {
			cmd.VertexBuffers = append(cmd.VertexBuffers, v.Descriptor().Label)
		}
	}
	return cmd
}

func (p *headlessRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cmd := p.draw(CommandDraw)
	cmd.Count, cmd.Instances, cmd.First, cmd.FirstInstance = vertexCount, instanceCount, firstVertex, firstInstance
	p.list.commands = append(p.list.commands, cmd)
}

func (p *headlessRenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	cmd := p.draw(CommandDrawIndexed)
	if p.index == nil && p.err == nil {
		p.err = fmt.Errorf("renderer: indexed draw in %q without an index buffer", p.label)
	}
	if p.index != nil {
		cmd.IndexBuffer = p.index.Descriptor().Label
	}
	cmd.Count, cmd.Instances, cmd.First, cmd.BaseVertex, cmd.FirstInstance = indexCount, instanceCount, firstIndex, baseVertex, firstInstance
	p.list.commands = append(p.list.commands, cmd)
}

func (p *headlessRenderPass) End() error {
	p.list.openPass = nil
	return p.err
}
