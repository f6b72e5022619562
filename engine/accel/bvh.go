package accel

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	sahBins = 8
	// maxDepth keeps every tree within the traversal stack of the trace shader.
	maxDepth = 24
)

// Node is one BVH node. Interior nodes have Count zero and their children at LeftFirst
// and LeftFirst+1; leaves cover Count primitives starting at LeftFirst in build order.
type Node struct {
	Min       mgl32.Vec3
	LeftFirst uint32
	Max       mgl32.Vec3
	Count     uint32
}

// IsLeaf reports whether the node references primitives.
func (n Node) IsLeaf() bool {
	return n.Count > 0
}

// Bounds returns the node's box.
func (n Node) Bounds() common.AABB {
	return common.AABB{Min: n.Min, Max: n.Max}
}

// Primitive is one input of a BVH build.
type Primitive struct {
	Bounds   common.AABB
	Centroid mgl32.Vec3
}

// BVH is a built tree. Order maps leaf primitive slots to the indices of the build input.
type BVH struct {
	Nodes []Node
	Order []uint32
}

// Depth returns the number of levels below the root.
func (b BVH) Depth() int {
	if len(b.Nodes) == 0 {
		return 0
	}
	var walk func(i uint32) int
	walk = func(i uint32) int {
		n := b.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.LeftFirst), walk(n.LeftFirst+1))
	}
	return walk(0)
}

// Compact copies the node array into an allocation of its exact length.
//
// Returns:
//   - int: the number of node slots released
func (b *BVH) Compact() int {
	spare := cap(b.Nodes) - len(b.Nodes)
	if spare == 0 {
		return 0
	}
	nodes := make([]Node, len(b.Nodes))
	copy(nodes, b.Nodes)
	b.Nodes = nodes
	return spare
}

type bvhBuilder struct {
	prims   []Primitive
	order   []uint32
	nodes   []Node
	maxLeaf int
}

// BuildBVH builds a binned SAH tree over prims with the root at node 0. The node array is
// allocated for the worst case of 2n-1 nodes; Compact trims it.
//
// Parameters:
//   - prims: the primitives, at least one
//   - maxLeaf: the primitive count at or below which a node always becomes a leaf
//
// Returns:
//   - BVH: the tree, or an empty BVH for no primitives
func BuildBVH(prims []Primitive, maxLeaf int) BVH {
	if len(prims) == 0 {
		return BVH{}
	}
	b := &bvhBuilder{
		prims:   prims,
		order:   make([]uint32, len(prims)),
		nodes:   make([]Node, 1, 2*len(prims)-1),
		maxLeaf: max(maxLeaf, 1),
	}
	for i := range b.order {
		b.order[i] = uint32(i)
	}
	b.nodes[0] = Node{LeftFirst: 0, Count: uint32(len(prims))}
	b.subdivide(0, 0)
	return BVH{Nodes: b.nodes, Order: b.order}
}

func (b *bvhBuilder) fit(first, count uint32) (common.AABB, common.AABB) {
	box, centroids := common.EmptyAABB(), common.EmptyAABB()
	for _, p := range b.order[first : first+count] {
		box = box.Union(b.prims[p].Bounds)
		centroids = centroids.Extend(b.prims[p].Centroid)
	}
	return box, centroids
}

func (b *bvhBuilder) subdivide(idx int, depth int) {
	first, count := b.nodes[idx].LeftFirst, b.nodes[idx].Count
	box, centroids := b.fit(first, count)
	b.nodes[idx].Min, b.nodes[idx].Max = box.Min, box.Max
	if count <= uint32(b.maxLeaf) || depth >= maxDepth {
		return
	}

	axis, split, cost := b.bestSplit(first, count, centroids)
	leafCost := float32(count) * box.SurfaceArea()
	mid := first
	if axis >= 0 && cost < leafCost {
		mid = b.partition(first, count, axis, split, centroids)
	}
	if mid == first || mid == first+count {
		// no useful SAH split, fall back to halving the range in centroid order
		b.sortAlong(first, count, widestAxis(centroids))
		mid = first + count/2
	}

	left := len(b.nodes)
	b.nodes = append(b.nodes,
		Node{LeftFirst: first, Count: mid - first},
		Node{LeftFirst: mid, Count: first + count - mid},
	)
	b.nodes[idx].LeftFirst = uint32(left)
	b.nodes[idx].Count = 0
	b.subdivide(left, depth+1)
	b.subdivide(left+1, depth+1)
}

type bin struct {
	box   common.AABB
	count uint32
}

// bestSplit evaluates sahBins-1 planes per axis and returns the cheapest, or axis -1 when
// every centroid coincides.
func (b *bvhBuilder) bestSplit(first, count uint32, centroids common.AABB) (int, int, float32) {
	bestAxis, bestSplit, bestCost := -1, 0, float32(math32.MaxFloat32)
	for axis := 0; axis < 3; axis++ {
		lo, hi := centroids.Min[axis], centroids.Max[axis]
		if hi-lo < 1e-12 {
			continue
		}
		var bins [sahBins]bin
		for i := range bins {
			bins[i].box = common.EmptyAABB()
		}
		scale := sahBins / (hi - lo)
		for _, p := range b.order[first : first+count] {
			k := binIndex(b.prims[p].Centroid[axis], lo, scale)
			bins[k].count++
			bins[k].box = bins[k].box.Union(b.prims[p].Bounds)
		}

		var leftArea, rightArea [sahBins - 1]float32
		var leftCount, rightCount [sahBins - 1]uint32
		lbox, rbox := common.EmptyAABB(), common.EmptyAABB()
		var lsum, rsum uint32
		for i := 0; i < sahBins-1; i++ {
			lsum += bins[i].count
			lbox = lbox.Union(bins[i].box)
			leftCount[i], leftArea[i] = lsum, area(lbox, lsum)
			rsum += bins[sahBins-1-i].count
			rbox = rbox.Union(bins[sahBins-1-i].box)
			rightCount[sahBins-2-i], rightArea[sahBins-2-i] = rsum, area(rbox, rsum)
		}
		for i := 0; i < sahBins-1; i++ {
			if leftCount[i] == 0 || rightCount[i] == 0 {
				continue
			}
			c := float32(leftCount[i])*leftArea[i] + float32(rightCount[i])*rightArea[i]
			if c < bestCost {
				bestAxis, bestSplit, bestCost = axis, i, c
			}
		}
	}
	return bestAxis, bestSplit, bestCost
}

func area(box common.AABB, count uint32) float32 {
	if count == 0 {
		return 0
	}
	return box.SurfaceArea()
}

func binIndex(c, lo, scale float32) int {
	return common.Clamp(int((c-lo)*scale), 0, sahBins-1)
}

// partition moves primitives whose bin is at or below split to the front of the range and
// returns the first index of the right side.
func (b *bvhBuilder) partition(first, count uint32, axis, split int, centroids common.AABB) uint32 {
	lo := centroids.Min[axis]
	scale := sahBins / (centroids.Max[axis] - lo)
	i, j := first, first+count
	for i < j {
		if binIndex(b.prims[b.order[i]].Centroid[axis], lo, scale) <= split {
			i++
			continue
		}
		j--
		b.order[i], b.order[j] = b.order[j], b.order[i]
	}
	return i
}

func (b *bvhBuilder) sortAlong(first, count uint32, axis int) {
	span := b.order[first : first+count]
	sort.SliceStable(span, func(i, j int) bool {
		return b.prims[span[i]].Centroid[axis] < b.prims[span[j]].Centroid[axis]
	})
}

func widestAxis(box common.AABB) int {
	size := box.Size()
	axis := 0
	if size[1] > size[axis] {
		axis = 1
	}
	if size[2] > size[axis] {
		axis = 2
	}
	return axis
}
