package scene

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/light"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/log"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("scene")

// ErrEmptyScene is returned when a scene description has nothing to draw.
var ErrEmptyScene = errors.New("scene: no instances")

// Buffers are the GPU resources of an uploaded scene.
type Buffers struct {
	// Vertices holds every mesh, VertexStride bytes per vertex, at Mesh.VertexOffset.
	Vertices gpu.Buffer
	// Indices holds every mesh's indices relative to its own first vertex, at Mesh.IndexOffset.
	Indices   gpu.Buffer
	Instances gpu.Buffer
	Materials gpu.Buffer
	Atlas     gpu.Texture
	Sampler   gpu.Sampler
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.RWMutex

	name      string
	meshes    []*Mesh
	materials []Material
	instances []MeshInstance
	skinned   []SkinnedInstance
	anims     []Animation
	sun       light.Light
	atlas     *Atlas
	bounds    common.AABB

	cameraPosition mgl32.Vec3
	cameraTarget   mgl32.Vec3

	r        renderer.Renderer
	buffers  Buffers
	uploaded bool

	skinWorkers int
	skinner     *skinner
}

// Scene is the read-only view of the world that the render passes consume. It owns the
// scene's GPU buffers once uploaded and advances animation and skinning from elapsed time.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Meshes returns every mesh, including skinning prototypes and the deformed copies of
	// skinned instances. Callers must not modify the meshes.
	Meshes() []*Mesh

	// Instances returns the mesh instances with their current and previous transforms.
	Instances() []MeshInstance

	// SkinnedInstances returns the instances deformed on the CPU.
	SkinnedInstances() []SkinnedInstance

	// Materials returns the materials in the order of the material buffer.
	Materials() []Material

	// Sun returns the directional light.
	Sun() light.Light

	// Lights returns every light of the scene. The sun is first.
	Lights() []light.Light

	// Bounds returns the world space bounds of all instances.
	Bounds() common.AABB

	// CameraStart returns the camera start position and look-at target.
	//
	// Returns:
	//   - mgl32.Vec3: the start position
	//   - mgl32.Vec3: the look-at target
	CameraStart() (position, target mgl32.Vec3)

	// Atlas returns the CPU image of the texture atlas.
	Atlas() *Atlas

	// Upload creates the scene's GPU buffers and the atlas texture on r.
	//
	// Parameters:
	//   - r: the renderer that owns the resources
	//
	// Returns:
	//   - error: an error if a resource could not be created or written
	Upload(r renderer.Renderer) error

	// Buffers returns the GPU resources. Valid after Upload.
	Buffers() Buffers

	// Animate advances the scene to animation time t for frame frameIndex. Every instance's
	// previous transform becomes its current one before the animations are applied, so calling
	// Animate with an unchanged t leaves no motion. Skinned instances whose pose changed are
	// re-skinned and record frameIndex as their LastUpdateFrame.
	//
	// Parameters:
	//   - t: the animation clock in seconds
	//   - frameIndex: the frame being prepared
	//
	// Returns:
	//   - error: an error if the updated buffers could not be written
	Animate(t float64, frameIndex uint32) error

	// Release destroys the GPU resources and stops the skinning workers.
	Release()
}

var _ Scene = &scene{}

// NewScene builds a scene from a description.
//
// Parameters:
//   - desc: the scene description
//   - options: functional options
//
// Returns:
//   - Scene: the scene, not yet uploaded
//   - error: ErrEmptyScene or an error naming the first invalid reference
func NewScene(desc *Description, options ...SceneBuilderOption) (Scene, error) {
	s := &scene{
		mu:             &sync.RWMutex{},
		name:           desc.Name,
		cameraPosition: desc.Camera.Position,
		cameraTarget:   desc.Camera.Target,
		skinWorkers:    max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}

	if s.cameraPosition == s.cameraTarget {
		s.cameraPosition = mgl32.Vec3{0, 1.8, 0}
		s.cameraTarget = mgl32.Vec3{1, 1.8, 0}
	}
	s.sun = buildSun(desc.Sun)

	if err := s.build(desc); err != nil {
		return nil, err
	}
	if len(s.instances) == 0 {
		return nil, ErrEmptyScene
	}
	s.skinner = newSkinner(s.skinWorkers)
	s.updateBounds()

	logger.Infof("scene %q: %d meshes, %d instances, %d skinned, %d animations",
		s.name, len(s.meshes), len(s.instances), len(s.skinned), len(s.anims))
	return s, nil
}

func buildSun(d SunDescription) light.Light {
	return light.NewSun(
		light.WithDirection(d.Direction),
		light.WithColor(d.Color),
		light.WithIrradiance(d.Irradiance),
		light.WithAngularSize(d.AngularSize),
		light.WithShadows(!d.NoShadows),
	)
}

// build resolves the description's name references into indexed scene data.
func (s *scene) build(desc *Description) error {
	materialIndex := map[string]int{}
	for _, md := range desc.Materials {
		if _, dup := materialIndex[md.Name]; dup {
			return fmt.Errorf("scene: duplicate material %q", md.Name)
		}
		materialIndex[md.Name] = len(s.materials)
		s.materials = append(s.materials, Material{
			Name:        md.Name,
			BaseColor:   common.Coalesce(md.BaseColor, mgl32.Vec4{1, 1, 1, 1}),
			Emissive:    md.Emissive,
			Roughness:   md.Roughness,
			Metalness:   md.Metalness,
			AlphaCutoff: md.AlphaCutoff,
			AlphaTested: md.AlphaTested,
			DoubleSided: md.DoubleSided,
			Texture:     md.Texture,
		})
	}
	if len(s.materials) == 0 {
		s.materials = append(s.materials, Material{Name: "default", BaseColor: mgl32.Vec4{0.8, 0.8, 0.8, 1}, Roughness: 0.8})
	}
	lookupMaterial := func(owner, name string, fallback int) (int, error) {
		if name == "" {
			return fallback, nil
		}
		i, ok := materialIndex[name]
		if !ok {
			return 0, fmt.Errorf("scene: %s references unknown material %q", owner, name)
		}
		return i, nil
	}

	meshIndex := map[string]int{}
	for _, md := range desc.Meshes {
		m, err := BuildPrimitive(md.Name, md)
		if err != nil {
			return err
		}
		if m.MaterialIndex, err = lookupMaterial("mesh "+md.Name, md.Material, 0); err != nil {
			return err
		}
		meshIndex[md.Name] = len(s.meshes)
		s.meshes = append(s.meshes, m)
	}

	targets := map[string]int{}
	place := func(id InstanceDescription, mesh int) (int, error) {
		mat, err := lookupMaterial("instance "+id.Name, id.Material, s.meshes[mesh].MaterialIndex)
		if err != nil {
			return 0, err
		}
		base := id.transform()
		m := base.Matrix()
		s.instances = append(s.instances, MeshInstance{
			Name:          id.Name,
			MeshIndex:     mesh,
			MaterialIndex: mat,
			Base:          base,
			Transform:     m,
			PrevTransform: m,
		})
		targets[id.Name] = len(s.instances) - 1
		return len(s.instances) - 1, nil
	}

	for _, id := range desc.Instances {
		mi, ok := meshIndex[id.Mesh]
		if !ok {
			return fmt.Errorf("scene: instance %q references unknown mesh %q", id.Name, id.Mesh)
		}
		if s.meshes[mi].IsSkinningPrototype() {
			return fmt.Errorf("scene: instance %q uses skinned mesh %q, list it under skinned", id.Name, id.Mesh)
		}
		if _, err := place(id, mi); err != nil {
			return err
		}
	}

	skinnedIndex := map[string]int{}
	for _, id := range desc.Skinned {
		pi, ok := meshIndex[id.Mesh]
		if !ok || !s.meshes[pi].IsSkinningPrototype() {
			return fmt.Errorf("scene: skinned instance %q needs a skinned mesh, got %q", id.Name, id.Mesh)
		}
		proto := s.meshes[pi]
		deformed := &Mesh{
			Name:          proto.Name + "/" + id.Name,
			Vertices:      append([]Vertex(nil), proto.Vertices...),
			Indices:       append([]uint32(nil), proto.Indices...),
			MaterialIndex: proto.MaterialIndex,
			Bounds:        proto.Bounds,
		}
		s.meshes = append(s.meshes, deformed)
		inst, err := place(id, len(s.meshes)-1)
		if err != nil {
			return err
		}
		pose := make([]Transform, len(proto.Skeleton.Joints))
		for j, joint := range proto.Skeleton.Joints {
			pose[j] = joint.Rest
		}
		skinnedIndex[id.Name] = len(s.skinned)
		s.skinned = append(s.skinned, SkinnedInstance{
			Name:           id.Name,
			InstanceIndex:  inst,
			MeshIndex:      len(s.meshes) - 1,
			PrototypeIndex: pi,
			Pose:           pose,
			dirty:          true,
		})
	}

	for _, ad := range desc.Animations {
		a := Animation{Name: ad.Name, Duration: ad.Duration}
		for _, cd := range ad.Channels {
			ch := Channel{Joint: -1}
			if cd.Joint != nil {
				si, ok := skinnedIndex[cd.Target]
				if !ok {
					return fmt.Errorf("scene: animation %q animates a joint of %q, which is not skinned", ad.Name, cd.Target)
				}
				joints := len(s.skinned[si].Pose)
				if *cd.Joint < 0 || *cd.Joint >= joints {
					return fmt.Errorf("scene: animation %q joint %d out of range for %q", ad.Name, *cd.Joint, cd.Target)
				}
				ch.Target, ch.Joint = si, *cd.Joint
			} else {
				ti, ok := targets[cd.Target]
				if !ok {
					return fmt.Errorf("scene: animation %q references unknown instance %q", ad.Name, cd.Target)
				}
				ch.Target = ti
			}
			for _, k := range cd.Translation {
				ch.Translation = append(ch.Translation, VectorKey{Time: k.Time, Value: k.Value})
			}
			for _, k := range cd.Rotation {
				ch.Rotation = append(ch.Rotation, RotationKey{Time: k.Time, Value: eulerDegrees(k.Value)})
			}
			for _, k := range cd.Scale {
				ch.Scale = append(ch.Scale, VectorKey{Time: k.Time, Value: k.Value})
			}
			a.Channels = append(a.Channels, ch)
		}
		s.anims = append(s.anims, a)
	}

	atlas, err := BuildAtlas(s.materials)
	if err != nil {
		return err
	}
	s.atlas = atlas
	return nil
}

// layout assigns every mesh its range in the shared vertex and index buffers.
func (s *scene) layout() (vertices, indices uint32) {
	for _, m := range s.meshes {
		m.VertexOffset = vertices
		m.IndexOffset = indices
		vertices += uint32(len(m.Vertices))
		indices += uint32(len(m.Indices))
	}
	return vertices, indices
}

func (s *scene) updateBounds() {
	b := common.EmptyAABB()
	for _, inst := range s.instances {
		b = b.Union(s.meshes[inst.MeshIndex].Bounds.Transform(inst.Transform))
	}
	s.bounds = b
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Meshes() []*Mesh {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meshes
}

func (s *scene) Instances() []MeshInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MeshInstance(nil), s.instances...)
}

func (s *scene) SkinnedInstances() []SkinnedInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SkinnedInstance(nil), s.skinned...)
}

func (s *scene) Materials() []Material {
	return append([]Material(nil), s.materials...)
}

func (s *scene) Sun() light.Light {
	return s.sun
}

func (s *scene) Lights() []light.Light {
	return []light.Light{s.sun}
}

func (s *scene) Bounds() common.AABB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bounds
}

func (s *scene) CameraStart() (mgl32.Vec3, mgl32.Vec3) {
	return s.cameraPosition, s.cameraTarget
}

func (s *scene) Atlas() *Atlas {
	return s.atlas
}

func (s *scene) Buffers() Buffers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffers
}

func (s *scene) Upload(r renderer.Renderer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploaded {
		return nil
	}
	nv, ni := s.layout()

	vb := make([]byte, 0, nv*VertexStride)
	ib := make([]uint32, 0, ni)
	for _, m := range s.meshes {
		vb = append(vb, MarshalVertices(m.Vertices)...)
		ib = append(ib, m.Indices...)
	}

	var err error
	b := Buffers{}
	create := func(label string, data []byte, usage gpu.BufferUsage) gpu.Buffer {
		if err != nil {
			return nil
		}
		var buf gpu.Buffer
		buf, err = r.CreateBuffer(gpu.BufferDescriptor{Label: label, Size: uint64(len(data)), Usage: usage | gpu.BufferUsageCopyDst})
		if err != nil {
			err = fmt.Errorf("scene: create %s: %w", label, err)
			return nil
		}
		if err = r.WriteBuffer(buf, 0, data); err != nil {
			err = fmt.Errorf("scene: write %s: %w", label, err)
		}
		return buf
	}
	b.Vertices = create("scene.vertices", vb, gpu.BufferUsageVertex|gpu.BufferUsageStorage)
	b.Indices = create("scene.indices", common.SliceToBytes(ib), gpu.BufferUsageIndex|gpu.BufferUsageStorage)
	b.Instances = create("scene.instances", MarshalInstances(s.instances, s.skinned), gpu.BufferUsageStorage)
	b.Materials = create("scene.materials", MarshalMaterials(s.materials), gpu.BufferUsageStorage)
	if err != nil {
		releaseBuffers(b)
		return err
	}

	b.Atlas, err = r.CreateTexture(gpu.TextureDescriptor{
		Label:  "scene.atlas",
		Width:  s.atlas.Width,
		Height: s.atlas.Height,
		Format: gpu.FormatRGBA8UnormSrgb,
		Usage:  gpu.TextureUsageSampled | gpu.TextureUsageCopyDst,
	})
	if err == nil {
		err = r.WriteTexture(b.Atlas, s.atlas.Pixels)
	}
	if err == nil {
		b.Sampler, err = r.CreateSampler(gpu.SamplerDescriptor{
			Label:         "scene.atlasSampler",
			Filter:        gpu.FilterLinear,
			Address:       gpu.AddressRepeat,
			MaxAnisotropy: 16,
		})
	}
	if err != nil {
		releaseBuffers(b)
		return fmt.Errorf("scene: atlas: %w", err)
	}

	s.r = r
	s.buffers = b
	s.uploaded = true
	logger.Debugf("scene %q uploaded: %d vertices, %d indices, atlas %dx%d", s.name, nv, ni, s.atlas.Width, s.atlas.Height)
	return nil
}

func releaseBuffers(b Buffers) {
	for _, buf := range []gpu.Buffer{b.Vertices, b.Indices, b.Instances, b.Materials} {
		if buf != nil {
			buf.Release()
		}
	}
	if b.Atlas != nil {
		b.Atlas.Release()
	}
	if b.Sampler != nil {
		b.Sampler.Release()
	}
}

func (s *scene) Animate(t float64, frameIndex uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.instances {
		s.instances[i].PrevTransform = s.instances[i].Transform
	}

	local := make([]Transform, len(s.instances))
	for i := range local {
		local[i] = IdentityTransform()
	}
	poses := make([][]Transform, len(s.skinned))
	for i, sk := range s.skinned {
		proto := s.meshes[sk.PrototypeIndex]
		poses[i] = make([]Transform, len(sk.Pose))
		for j, joint := range proto.Skeleton.Joints {
			poses[i][j] = joint.Rest
		}
	}

	for ai := range s.anims {
		a := &s.anims[ai]
		lt := LocalTime(t, ai, a.Duration)
		for ci := range a.Channels {
			ch := &a.Channels[ci]
			if ch.Joint >= 0 {
				poses[ch.Target][ch.Joint] = ch.SampleOver(poses[ch.Target][ch.Joint], lt)
				continue
			}
			local[ch.Target] = ch.SampleOver(local[ch.Target], lt)
		}
	}

	for i := range s.instances {
		s.instances[i].Transform = Compose(s.instances[i].Base, local[i])
	}

	var jobs []skinJob
	var changed []int
	for i := range s.skinned {
		sk := &s.skinned[i]
		if !sk.dirty && posesEqual(sk.Pose, poses[i]) {
			continue
		}
		sk.Pose = poses[i]
		sk.dirty = false
		sk.LastUpdateFrame = frameIndex
		jobs = append(jobs, skinJob{proto: s.meshes[sk.PrototypeIndex], dst: s.meshes[sk.MeshIndex], pose: sk.Pose})
		changed = append(changed, sk.MeshIndex)
	}
	if len(jobs) > 0 {
		s.skinner.run(jobs)
	}
	s.updateBounds()

	if !s.uploaded {
		return nil
	}
	if err := s.r.WriteBuffer(s.buffers.Instances, 0, MarshalInstances(s.instances, s.skinned)); err != nil {
		return fmt.Errorf("scene: write instances: %w", err)
	}
	for _, mi := range changed {
		m := s.meshes[mi]
		if err := s.r.WriteBuffer(s.buffers.Vertices, uint64(m.VertexOffset)*VertexStride, MarshalVertices(m.Vertices)); err != nil {
			return fmt.Errorf("scene: write skinned %s: %w", m.Name, err)
		}
	}
	return nil
}

func posesEqual(a, b []Transform) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *scene) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skinner != nil {
		s.skinner.stop()
		s.skinner = nil
	}
	if s.uploaded {
		releaseBuffers(s.buffers)
		s.buffers = Buffers{}
		s.uploaded = false
	}
}
