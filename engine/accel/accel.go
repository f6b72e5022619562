package accel

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/log"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/olekukonko/tablewriter"
)

var logger = log.New("accel")

// Buffers are the GPU resources read by the trace shader's group 1.
type Buffers struct {
	// Nodes holds the TLAS at offset 0 followed by every BLAS at its MeshRecord.NodeOffset.
	Nodes     gpu.Buffer
	Instances gpu.Buffer
	Triangles gpu.Buffer
	Meshes    gpu.Buffer
}

// Stats counts the work done by a Manager.
type Stats struct {
	StaticBLAS  int
	DynamicBLAS int
	// SkippedPrototypes counts skinning source meshes that got no structure.
	SkippedPrototypes int
	// CompactedNodes is the number of node slots released by compaction.
	CompactedNodes int
	Rebuilds       int
	TLASBuilds     int
	Nodes          int
	Triangles      int
	BuildTime      time.Duration
}

// manager is the implementation of the Manager interface.
type manager struct {
	mu *sync.Mutex

	renderer renderer.Renderer
	workers  int
	pool     worker.DynamicWorkerPool

	blas       map[int]*BLAS
	records    []MeshRecord
	tlas       TLAS
	tlasNodes  int
	transforms []mgl32.Mat4
	buffers    Buffers
	built      bool
	stopped    bool
	stats      Stats
}

// Manager defines the interface for the acceleration structures of the tracing producers.
//
// Bottom level structures are built on the CPU once per mesh, skipping skinning
// prototypes, and static ones are compacted once their build completes. The deformed
// copies of skinned instances are rebuilt whenever their pose changes. The top level
// structure is rebuilt whenever an instance transform or a bottom level structure changes.
type Manager interface {
	// Build creates every bottom level structure and the top level structure for an
	// uploaded scene, allocates the GPU buffers and waits for the device to go idle.
	//
	// Parameters:
	//   - s: the uploaded scene
	//
	// Returns:
	//   - error: an error if a buffer could not be created or written
	Build(s scene.Scene) error

	// Update rebuilds the structures of skinned instances updated since their last build
	// and the top level structure. The vertex and index buffers of the scene are moved to
	// the build input state with a single barrier for the whole batch.
	//
	// Parameters:
	//   - cl: the frame's command list
	//   - s: the scene, already animated for frameIndex
	//   - frameIndex: the frame being recorded
	//
	// Returns:
	//   - int: the number of bottom level structures rebuilt
	//   - error: an error if Build has not run or a buffer write failed
	Update(cl renderer.CommandList, s scene.Scene, frameIndex uint32) (int, error)

	// Built reports whether Build has completed.
	//
	// Returns:
	//   - bool: true once the buffers exist
	Built() bool

	// Buffers returns the GPU resources. Valid after Build.
	//
	// Returns:
	//   - Buffers: the node, instance, triangle and mesh buffers
	Buffers() Buffers

	// BLAS returns the bottom level structure of a mesh.
	//
	// Parameters:
	//   - meshIndex: the scene mesh index
	//
	// Returns:
	//   - *BLAS: the structure
	//   - bool: false for prototypes and unknown meshes
	BLAS(meshIndex int) (*BLAS, bool)

	// TLAS returns the current top level structure.
	//
	// Returns:
	//   - TLAS: the structure
	TLAS() TLAS

	// MeshRecords returns the per mesh offsets written to the mesh buffer.
	//
	// Returns:
	//   - []MeshRecord: one record per scene mesh
	MeshRecords() []MeshRecord

	// Stats returns the work counters.
	//
	// Returns:
	//   - Stats: a copy of the counters
	Stats() Stats

	// StatsTable renders the counters as a table.
	//
	// Returns:
	//   - string: the rendered table
	StatsTable() string

	// Release destroys the GPU buffers and stops the build workers.
	Release()
}

var _ Manager = &manager{}

// NewManager creates an empty Manager.
//
// Parameters:
//   - r: the renderer that owns the buffers
//   - options: functional options
//
// Returns:
//   - Manager: the manager
func NewManager(r renderer.Renderer, options ...ManagerBuilderOption) Manager {
	m := &manager{
		mu:       &sync.Mutex{},
		renderer: r,
		blas:     map[int]*BLAS{},
	}
	for _, opt := range options {
		opt(m)
	}
	if m.workers <= 0 {
		m.workers = max(runtime.NumCPU()-1, 1)
	}
	m.pool = worker.NewDynamicWorkerPool(m.workers, 256, 1*time.Second)
	return m
}

type buildJob struct {
	index   int
	mesh    *scene.Mesh
	dynamic bool
}

// buildAll builds jobs on the worker pool and blocks until every structure exists.
func (m *manager) buildAll(jobs []buildJob) []*BLAS {
	out := make([]*BLAS, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		slot, job := i, j
		m.pool.SubmitTask(worker.Task{
			ID: slot,
			Do: func() (any, error) {
				defer wg.Done()
				out[slot] = BuildBLAS(job.index, job.mesh, job.dynamic)
				return nil, nil
			},
		})
	}
	wg.Wait()
	return out
}

func (m *manager) Build(s scene.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Now()
	b := s.Buffers()
	if b.Vertices == nil {
		return fmt.Errorf("accel: scene %q is not uploaded", s.Name())
	}
	m.release()

	meshes := s.Meshes()
	skinned := s.SkinnedInstances()
	dynamic := make(map[int]uint32, len(skinned))
	for _, sk := range skinned {
		dynamic[sk.MeshIndex] = sk.LastUpdateFrame
	}

	var jobs []buildJob
	for i, mesh := range meshes {
		if mesh.IsSkinningPrototype() {
			m.stats.SkippedPrototypes++
			logger.Debugf("skipping skinning prototype %s", mesh.Name)
			continue
		}
		_, isDynamic := dynamic[i]
		jobs = append(jobs, buildJob{index: i, mesh: mesh, dynamic: isDynamic})
	}
	for _, b := range m.buildAll(jobs) {
		if b.Dynamic {
			b.SourceFrame = dynamic[b.MeshIndex]
			m.stats.DynamicBLAS++
		} else {
			m.stats.CompactedNodes += b.BVH.Compact()
			b.Compacted = true
			m.stats.StaticBLAS++
		}
		m.blas[b.MeshIndex] = b
	}

	instances := s.Instances()
	m.tlasNodes = max(2*len(instances)-1, 1)
	m.records = make([]MeshRecord, len(meshes))
	nodes, triangles := m.tlasNodes, 0
	for i, mesh := range meshes {
		m.records[i] = MeshRecord{VertexOffset: mesh.VertexOffset, IndexOffset: mesh.IndexOffset}
		blas, ok := m.blas[i]
		if !ok {
			continue
		}
		m.records[i].NodeOffset = uint32(nodes)
		m.records[i].TriangleOffset = uint32(triangles)
		nodes += blas.NodeReservation()
		triangles += len(blas.Triangles)
	}

	if err := m.allocate(nodes, triangles, len(instances), len(meshes)); err != nil {
		m.release()
		return err
	}
	for _, blas := range m.blas {
		if err := m.writeBLAS(blas); err != nil {
			m.release()
			return err
		}
	}
	records := make([]byte, len(m.records)*MeshRecordSize)
	for i := range m.records {
		m.records[i].MarshalTo(records[i*MeshRecordSize:])
	}
	if err := m.renderer.WriteBuffer(m.buffers.Meshes, 0, records); err != nil {
		m.release()
		return fmt.Errorf("accel: write mesh records: %w", err)
	}
	if err := m.writeTLAS(instances, s.Materials()); err != nil {
		m.release()
		return err
	}

	m.renderer.WaitIdle()
	m.built = true
	m.stats.Nodes, m.stats.Triangles = nodes, triangles
	m.stats.BuildTime = time.Since(start)
	logger.Noticef("built %d static and %d dynamic BLAS, %d nodes, %d triangles in %s",
		m.stats.StaticBLAS, m.stats.DynamicBLAS, nodes, triangles, m.stats.BuildTime)
	return nil
}

func (m *manager) allocate(nodes, triangles, instances, meshes int) error {
	create := func(label string, size int) (gpu.Buffer, error) {
		buf, err := m.renderer.CreateBuffer(gpu.BufferDescriptor{
			Label: label,
			Size:  uint64(max(size, 16)),
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("accel: create %s: %w", label, err)
		}
		return buf, nil
	}
	var err error
	if m.buffers.Nodes, err = create("accel.nodes", nodes*NodeSize); err != nil {
		return err
	}
	if m.buffers.Instances, err = create("accel.tlasInstances", instances*TLASInstanceSize); err != nil {
		return err
	}
	if m.buffers.Triangles, err = create("accel.triangles", triangles*TriangleSize); err != nil {
		return err
	}
	if m.buffers.Meshes, err = create("accel.meshes", meshes*MeshRecordSize); err != nil {
		return err
	}
	return nil
}

func (m *manager) writeBLAS(b *BLAS) error {
	rec := m.records[b.MeshIndex]
	if err := m.renderer.WriteBuffer(m.buffers.Nodes, uint64(rec.NodeOffset)*NodeSize, marshalNodes(b.BVH.Nodes)); err != nil {
		return fmt.Errorf("accel: write nodes of mesh %d: %w", b.MeshIndex, err)
	}
	if err := m.renderer.WriteBuffer(m.buffers.Triangles, uint64(rec.TriangleOffset)*TriangleSize, marshalTriangles(b.Triangles)); err != nil {
		return fmt.Errorf("accel: write triangles of mesh %d: %w", b.MeshIndex, err)
	}
	return nil
}

func (m *manager) writeTLAS(instances []scene.MeshInstance, materials []scene.Material) error {
	m.tlas = BuildTLAS(instances, materials, m.blas)
	if len(m.tlas.BVH.Nodes) > m.tlasNodes {
		return fmt.Errorf("accel: TLAS needs %d nodes, %d reserved", len(m.tlas.BVH.Nodes), m.tlasNodes)
	}
	if err := m.renderer.WriteBuffer(m.buffers.Nodes, 0, marshalNodes(m.tlas.BVH.Nodes)); err != nil {
		return fmt.Errorf("accel: write TLAS nodes: %w", err)
	}
	buf := make([]byte, len(m.tlas.Instances)*TLASInstanceSize)
	for i := range m.tlas.Instances {
		m.tlas.Instances[i].MarshalTo(buf[i*TLASInstanceSize:])
	}
	if len(buf) > 0 {
		if err := m.renderer.WriteBuffer(m.buffers.Instances, 0, buf); err != nil {
			return fmt.Errorf("accel: write TLAS instances: %w", err)
		}
	}
	m.transforms = m.transforms[:0]
	for _, inst := range instances {
		m.transforms = append(m.transforms, inst.Transform)
	}
	m.stats.TLASBuilds++
	return nil
}

func (m *manager) Update(cl renderer.CommandList, s scene.Scene, frameIndex uint32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.built {
		return 0, fmt.Errorf("accel: update before build")
	}

	meshes := s.Meshes()
	var jobs []buildJob
	frames := map[int]uint32{}
	for _, sk := range s.SkinnedInstances() {
		b, ok := m.blas[sk.MeshIndex]
		if !ok {
			continue
		}
		if sk.LastUpdateFrame >= frameIndex || sk.LastUpdateFrame != b.SourceFrame {
			jobs = append(jobs, buildJob{index: sk.MeshIndex, mesh: meshes[sk.MeshIndex], dynamic: true})
			frames[sk.MeshIndex] = sk.LastUpdateFrame
		}
	}

	if len(jobs) > 0 {
		sb := s.Buffers()
		cl.Barrier(
			gpu.Barrier{Buffer: sb.Vertices, Before: gpu.StateShaderRead, After: gpu.StateAccelBuildInput},
			gpu.Barrier{Buffer: sb.Indices, Before: gpu.StateShaderRead, After: gpu.StateAccelBuildInput},
		)
		for _, b := range m.buildAll(jobs) {
			b.SourceFrame = frames[b.MeshIndex]
			m.blas[b.MeshIndex] = b
			if err := m.writeBLAS(b); err != nil {
				return 0, err
			}
		}
		cl.Barrier(
			gpu.Barrier{Buffer: sb.Vertices, Before: gpu.StateAccelBuildInput, After: gpu.StateShaderRead},
			gpu.Barrier{Buffer: sb.Indices, Before: gpu.StateAccelBuildInput, After: gpu.StateShaderRead},
		)
		m.stats.Rebuilds += len(jobs)
		logger.Debugf("frame %d: rebuilt %d skinned BLAS", frameIndex, len(jobs))
	}

	instances := s.Instances()
	if len(jobs) > 0 || m.transformsChanged(instances) {
		if err := m.writeTLAS(instances, s.Materials()); err != nil {
			return len(jobs), err
		}
	}
	return len(jobs), nil
}

func (m *manager) transformsChanged(instances []scene.MeshInstance) bool {
	if len(instances) != len(m.transforms) {
		return true
	}
	for i, inst := range instances {
		if inst.Transform != m.transforms[i] {
			return true
		}
	}
	return false
}

func (m *manager) Built() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.built
}

func (m *manager) Buffers() Buffers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffers
}

func (m *manager) BLAS(meshIndex int) (*BLAS, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blas[meshIndex]
	return b, ok
}

func (m *manager) TLAS() TLAS {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tlas
}

func (m *manager) MeshRecords() []MeshRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MeshRecord(nil), m.records...)
}

func (m *manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *manager) StatsTable() string {
	st := m.Stats()
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Structure", "Count"})
	table.Append([]string{"Static BLAS (compacted)", fmt.Sprint(st.StaticBLAS)})
	table.Append([]string{"Dynamic BLAS", fmt.Sprint(st.DynamicBLAS)})
	table.Append([]string{"Skipped prototypes", fmt.Sprint(st.SkippedPrototypes)})
	table.Append([]string{"Nodes", fmt.Sprint(st.Nodes)})
	table.Append([]string{"Node slots compacted", fmt.Sprint(st.CompactedNodes)})
	table.Append([]string{"Triangles", fmt.Sprint(st.Triangles)})
	table.Append([]string{"Skinned rebuilds", fmt.Sprint(st.Rebuilds)})
	table.Append([]string{"TLAS builds", fmt.Sprint(st.TLASBuilds)})
	table.SetFooter([]string{"Initial build", st.BuildTime.String()})
	table.Render()
	return buf.String()
}

func (m *manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
	if !m.stopped {
		m.pool.Stop()
		m.stopped = true
	}
}

func (m *manager) release() {
	for _, buf := range []gpu.Buffer{m.buffers.Nodes, m.buffers.Instances, m.buffers.Triangles, m.buffers.Meshes} {
		if buf != nil {
			buf.Release()
		}
	}
	m.buffers = Buffers{}
	m.blas = map[int]*BLAS{}
	m.records = nil
	m.transforms = nil
	m.built = false
	m.stats = Stats{}
}
