package bind_group_provider

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kernel = `
@group(0) @binding(0) var<storage, read_write> values: array<u32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) id: vec3u) {
    values[id.x] = id.y;
}
`

type fakeGroup struct {
	id       uint64
	released bool
}

func (g *fakeGroup) ID() uint64                    { return g.id }
func (g *fakeGroup) Label() string                 { return "fake" }
func (g *fakeGroup) Entries() []gpu.BindGroupEntry { return nil }
func (g *fakeGroup) Release()                      { g.released = true }

type fakeBinder struct {
	created []*fakeGroup
	fail    error
}

func (b *fakeBinder) CreateBindGroup(pipeline.Pipeline, uint32, []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	g := &fakeGroup{id: uint64(len(b.created) + 1)}
	b.created = append(b.created, g)
	return g, nil
}

func newKernel(t *testing.T, name string) pipeline.Pipeline {
	t.Helper()
	s, err := shader.NewShader(name, shader.ShaderTypeCompute, kernel, nil)
	require.NoError(t, err)
	p, err := pipeline.NewPipeline(name, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(s))
	require.NoError(t, err)
	return p
}

func TestBindGroupRebuildsOnGeneration(t *testing.T) {
	b := &fakeBinder{}
	p := NewBindGroupProvider("test", b, WithCapacity(4))
	k := newKernel(t, "kernel")
	calls := 0
	entries := func() []gpu.BindGroupEntry {
		calls++
		return nil
	}

	first, err := p.BindGroup("values", k, 0, 1, entries)
	require.NoError(t, err)
	again, err := p.BindGroup("values", k, 0, 1, entries)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, calls)

	next, err := p.BindGroup("values", k, 0, 2, entries)
	require.NoError(t, err)
	assert.NotSame(t, first, next)
	assert.True(t, first.(*fakeGroup).released)
	assert.Equal(t, 2, p.Builds())
	assert.Equal(t, 1, p.Len())
}

func TestBindGroupRebuildsOnPipeline(t *testing.T) {
	b := &fakeBinder{}
	p := NewBindGroupProvider("test", b)
	a, c := newKernel(t, "a"), newKernel(t, "c")
	none := func() []gpu.BindGroupEntry { return nil }

	ga, err := p.BindGroup("values", a, 0, 0, none)
	require.NoError(t, err)
	gc, err := p.BindGroup("values", c, 0, 0, none)
	require.NoError(t, err)
	assert.NotSame(t, ga, gc)

	_, err = p.BindGroup("other", c, 0, 0, none)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())

	p.Invalidate()
	assert.Zero(t, p.Len())
	for _, g := range b.created[1:] {
		assert.True(t, g.released)
	}
}

func TestBindGroupErrorKeepsCachedGroup(t *testing.T) {
	b := &fakeBinder{}
	p := NewBindGroupProvider("test", b)
	k := newKernel(t, "kernel")
	none := func() []gpu.BindGroupEntry { return nil }

	g, err := p.BindGroup("values", k, 0, 1, none)
	require.NoError(t, err)

	b.fail = gpu.ErrInvalidHandle
	_, err = p.BindGroup("values", k, 0, 2, none)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrInvalidHandle))
	assert.Contains(t, err.Error(), "test: bind group values")
	assert.False(t, g.(*fakeGroup).released)
}

type memWriter struct {
	writes map[string][]byte
}

func (w *memWriter) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	if buf.Descriptor().Usage&gpu.BufferUsageCopyDst == 0 {
		return errors.New("not writable")
	}
	w.writes[buf.Descriptor().Label] = data
	return nil
}

type memBuffer struct {
	desc gpu.BufferDescriptor
}

func (b *memBuffer) ID() uint64                       { return 1 }
func (b *memBuffer) Descriptor() gpu.BufferDescriptor { return b.desc }
func (b *memBuffer) Release()                         {}

func TestWriteAllStopsAtFirstFailure(t *testing.T) {
	w := &memWriter{writes: map[string][]byte{}}
	ok := &memBuffer{desc: gpu.BufferDescriptor{Label: "ok", Size: 4, Usage: gpu.BufferUsageCopyDst}}
	bad := &memBuffer{desc: gpu.BufferDescriptor{Label: "bad", Size: 4}}
	late := &memBuffer{desc: gpu.BufferDescriptor{Label: "late", Size: 4, Usage: gpu.BufferUsageCopyDst}}

	err := WriteAll(w,
		BufferWrite{Buffer: ok, Data: []byte{1}},
		BufferWrite{Buffer: bad, Data: []byte{2}},
		BufferWrite{Buffer: late, Data: []byte{3}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write bad")
	assert.Contains(t, w.writes, "ok")
	assert.NotContains(t, w.writes, "late")
}
