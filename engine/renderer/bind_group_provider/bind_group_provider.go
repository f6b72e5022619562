package bind_group_provider

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
)

// Binder creates bind groups against a compiled pipeline's layout. The renderer implements it.
type Binder interface {
	CreateBindGroup(p pipeline.Pipeline, group uint32, entries []gpu.BindGroupEntry) (gpu.BindGroup, error)
}

// Entries builds the entries of one bind group. It is only called when the group is stale.
type Entries func() []gpu.BindGroupEntry

// slot is one cached bind group together with the identity it was built for.
type slot struct {
	pipeline   pipeline.Pipeline
	generation uint64
	bindGroup  gpu.BindGroup
}

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	mu sync.Mutex

	// label prefixes the key of every bind group in log lines and errors.
	label  string
	binder Binder
	slots  map[string]*slot
	builds int
}

// BindGroupProvider caches the bind groups of a pass. A bind group is identified by a key
// chosen by the caller and is stamped with the pipeline it was created for and a generation
// number; asking for it with a different pipeline or generation releases the old group and
// builds a new one.
//
// Usage pattern:
//  1. A pass creates one provider per set of pipelines it drives
//  2. Each frame it asks for its groups with the render target generation, or 0 for groups
//     that only reference long-lived resources
//  3. Groups referencing swapped surfaces are rebuilt, everything else is reused
type BindGroupProvider interface {
	// Label returns the debug label of this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the cached group for key, rebuilding it when the pipeline or the
	// generation differs from the cached one.
	//
	// Parameters:
	//   - key: identifies the group within this provider
	//   - p: the compiled pipeline the group is bound to
	//   - group: the group index in p's layout
	//   - generation: the generation of the resources the entries reference
	//   - entries: builds the entries on a miss
	//
	// Returns:
	//   - gpu.BindGroup: the bind group
	//   - error: an error if the group could not be created
	BindGroup(key string, p pipeline.Pipeline, group uint32, generation uint64, entries Entries) (gpu.BindGroup, error)

	// Builds returns the number of bind groups created since construction.
	//
	// Returns:
	//   - int: the build count
	Builds() int

	// Len returns the number of cached bind groups.
	//
	// Returns:
	//   - int: the cache size
	Len() int

	// Invalidate releases every cached bind group. The next request for each key rebuilds it.
	Invalidate()

	// Release releases every GPU resource held by this provider.
	Release()
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates an empty provider.
//
// Parameters:
//   - label: the debug label
//   - binder: creates the bind groups
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: the provider
func NewBindGroupProvider(label string, binder Binder, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:  label,
		binder: binder,
		slots:  make(map[string]*slot),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup(key string, pl pipeline.Pipeline, group uint32, generation uint64, entries Entries) (gpu.BindGroup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[key]
	if ok && s.pipeline == pl && s.generation == generation {
		return s.bindGroup, nil
	}
	bg, err := p.binder.CreateBindGroup(pl, group, entries())
	if err != nil {
		return nil, fmt.Errorf("%s: bind group %s: %w", p.label, key, err)
	}
	if ok && s.bindGroup != nil {
		s.bindGroup.Release()
	}
	p.slots[key] = &slot{pipeline: pl, generation: generation, bindGroup: bg}
	p.builds++
	return bg, nil
}

func (p *bindGroupProvider) Builds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builds
}

func (p *bindGroupProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

func (p *bindGroupProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, s := range p.slots {
		if s.bindGroup != nil {
			s.bindGroup.Release()
		}
		delete(p.slots, key)
	}
}

func (p *bindGroupProvider) Release() {
	p.Invalidate()
}
