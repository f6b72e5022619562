package scene

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/go-gl/mathgl/mgl32"
)

// skinner deforms skinned instances on the CPU. Workers persist across frames and a
// WaitGroup is the per-frame barrier, since pool.Wait only returns once the workers go idle.
type skinner struct {
	pool    worker.DynamicWorkerPool
	workers int
}

func newSkinner(workers int) *skinner {
	if workers <= 0 {
		workers = max(runtime.NumCPU()-1, 1)
	}
	return &skinner{
		pool:    worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		workers: workers,
	}
}

// skinJob deforms one prototype into its instance copy.
type skinJob struct {
	proto *Mesh
	dst   *Mesh
	pose  []Transform
}

// run skins every job in parallel and blocks until all of them are done.
func (s *skinner) run(jobs []skinJob) {
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		job := j
		s.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				Skin(job.proto, job.dst, job.pose)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (s *skinner) stop() {
	s.pool.Stop()
}

// JointMatrices returns the skinning matrix of every joint for a pose: the joint's model
// space transform times its inverse bind matrix. A nil or short pose falls back to the rest pose.
//
// Parameters:
//   - sk: the skeleton, parents before children
//   - pose: the local transform of each joint
//
// Returns:
//   - []mgl32.Mat4: one matrix per joint
func JointMatrices(sk *Skeleton, pose []Transform) []mgl32.Mat4 {
	world := make([]mgl32.Mat4, len(sk.Joints))
	out := make([]mgl32.Mat4, len(sk.Joints))
	for i, j := range sk.Joints {
		local := j.Rest
		if i < len(pose) {
			local = pose[i]
		}
		world[i] = local.Matrix()
		if j.Parent >= 0 {
			world[i] = world[j.Parent].Mul4(world[i])
		}
		out[i] = world[i].Mul4(j.InverseBind)
	}
	return out
}

// Skin writes the linear blend skinned vertices of proto into dst and refreshes dst's bounds.
// dst must have as many vertices as proto.
func Skin(proto, dst *Mesh, pose []Transform) {
	mats := JointMatrices(proto.Skeleton, pose)
	for i, v := range proto.Vertices {
		w := proto.Skin[i]
		var m mgl32.Mat4
		for k := 0; k < 4; k++ {
			if w.Weights[k] == 0 {
				continue
			}
			m = m.Add(mats[w.Joints[k]].Mul(w.Weights[k]))
		}
		out := v
		out.Position = m.Mul4x1(v.Position.Vec4(1)).Vec3()
		out.Normal = normalizeOr(m.Mul4x1(v.Normal.Vec4(0)).Vec3(), v.Normal)
		t := normalizeOr(m.Mul4x1(v.Tangent.Vec3().Vec4(0)).Vec3(), v.Tangent.Vec3())
		out.Tangent = t.Vec4(v.Tangent[3])
		dst.Vertices[i] = out
	}
	dst.recomputeBounds()
}

func normalizeOr(v, fallback mgl32.Vec3) mgl32.Vec3 {
	if l := v.Len(); l > 1e-8 {
		return v.Mul(1 / l)
	}
	return fallback
}
