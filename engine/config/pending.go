package config

import "sync"

// Change is a bitmask describing what an applied batch of mutations touched.
type Change uint32

const (
	// ChangePipeline means the shader variant of the producer pipelines changed.
	ChangePipeline Change = 1 << iota
	// ChangeAAMode means the anti-aliasing mode changed.
	ChangeAAMode
	// ChangeProducer means the geometry producer changed.
	ChangeProducer
	// ChangeQuality means the upscaler quality preset changed.
	ChangeQuality
	// ChangeShaderCache means the pipeline cache must be cleared.
	ChangeShaderCache
	// ChangeOther covers every field that only affects the constant block.
	ChangeOther
)

// Has reports whether any of the bits in o are set.
func (c Change) Has(o Change) bool {
	return c&o != 0
}

// Mutation edits a configuration in place. Mutations run on the frame thread.
type Mutation func(*RenderConfiguration)

// Pending collects configuration mutations from input handlers and the file
// watcher. They are only applied by Apply, which the orchestrator calls between frames.
type Pending struct {
	mu        sync.Mutex
	mutations []Mutation
	replace   *RenderConfiguration
	recreate  bool
}

// NewPending creates an empty change queue.
func NewPending() *Pending {
	return &Pending{}
}

// Enqueue queues a mutation. Safe for concurrent use.
func (p *Pending) Enqueue(m Mutation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mutations = append(p.mutations, m)
}

// Replace queues a whole configuration and drops the mutations queued before it.
// Mutations queued after it are applied on top.
func (p *Pending) Replace(c RenderConfiguration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replace = &c
	p.mutations = p.mutations[:0]
}

// RecreatePipelines requests a pipeline cache flush at the next frame boundary.
func (p *Pending) RecreatePipelines() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recreate = true
}

// Empty reports whether nothing is queued.
func (p *Pending) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replace == nil && len(p.mutations) == 0 && !p.recreate
}

// Apply drains the queue onto current and validates the result.
//
// Parameters:
//   - current: the configuration of the frame that just finished
//   - caps: device and upscaler capabilities used for validation
//
// Returns:
//   - RenderConfiguration: the configuration for the next frame
//   - Change: what differs from current
func (p *Pending) Apply(current RenderConfiguration, caps Capabilities) (RenderConfiguration, Change) {
	p.mu.Lock()
	replace, mutations, recreate := p.replace, p.mutations, p.recreate
	p.replace, p.mutations, p.recreate = nil, nil, false
	p.mu.Unlock()

	next := current
	if replace != nil {
		next = *replace
	}
	for _, m := range mutations {
		m(&next)
	}
	next, _ = next.Validate(caps)

	change := Diff(current, next)
	if recreate {
		change |= ChangeShaderCache | ChangePipeline
	}
	return next, change
}

// Diff classifies the differences between two configurations.
func Diff(a, b RenderConfiguration) Change {
	var c Change
	if a.SamplerType != b.SamplerType || a.STFLoad != b.STFLoad || a.ProducerMode != b.ProducerMode || a.ThreadGroup != b.ThreadGroup {
		c |= ChangePipeline
	}
	if a.ProducerMode != b.ProducerMode {
		c |= ChangeProducer
	}
	if a.AAMode != b.AAMode {
		c |= ChangeAAMode
	}
	if a.Quality != b.Quality {
		c |= ChangeQuality
	}
	if c == 0 && a != b {
		c |= ChangeOther
	}
	return c
}
