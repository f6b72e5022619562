package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var logger = log.New("pipeline")

// Compiler creates and destroys backend objects for pipelines. The renderer implements it.
type Compiler interface {
	// CompilePipeline creates the backend object of p and stores it with SetHandle.
	CompilePipeline(p Pipeline) error

	// ReleasePipeline destroys the backend object of p.
	ReleasePipeline(p Pipeline)
}

// Factory loads the shaders of one pipeline variant and assembles it. It is only called on a cache miss.
type Factory func(defines config.MacroSet) (Pipeline, error)

// Request names one pipeline variant to compile ahead of use.
type Request struct {
	Name    string
	Defines config.MacroSet
	Factory Factory
}

// CacheStats counts cache activity since creation.
type CacheStats struct {
	Entries       int
	Builds        int
	Hits          int
	Invalidations int
}

// Cache is a content-addressed store of compiled pipelines keyed by pipeline name and macro set.
// Concurrent requests for the same missing variant share a single build.
type Cache struct {
	compiler Compiler
	group    singleflight.Group

	mu         sync.Mutex
	entries    map[string]Pipeline
	generation uint64
	// orphans are builds that finished after an Invalidate; released by the next one.
	orphans []Pipeline
	stats   CacheStats
}

// NewCache creates an empty cache that compiles through c.
//
// Parameters:
//   - c: the compiler used for every build
//
// Returns:
//   - *Cache: the cache
func NewCache(c Compiler) *Cache {
	return &Cache{
		compiler: c,
		entries:  make(map[string]Pipeline),
	}
}

// CacheKey returns the content address of a pipeline variant.
func CacheKey(name string, defines config.MacroSet) string {
	return name + "#" + defines.Key()
}

// Get returns the compiled variant of name for defines, building it with factory on a miss.
//
// Parameters:
//   - name: the pipeline name
//   - defines: the macro set selecting the variant
//   - factory: assembles the pipeline on a miss
//
// Returns:
//   - Pipeline: the compiled pipeline
//   - error: an error if the factory or the compile fails
func (c *Cache) Get(name string, defines config.MacroSet, factory Factory) (Pipeline, error) {
	key := CacheKey(name, defines)

	c.mu.Lock()
	if p, ok := c.entries[key]; ok {
		c.stats.Hits++
		c.mu.Unlock()
		return p, nil
	}
	generation := c.generation
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		if p, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return p, nil
		}
		c.mu.Unlock()

		p, err := factory(defines)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
		if err := c.compiler.CompilePipeline(p); err != nil {
			return nil, fmt.Errorf("pipeline %s: compile: %w", name, err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.stats.Builds++
		if c.generation != generation {
			c.orphans = append(c.orphans, p)
			return p, nil
		}
		c.entries[key] = p
		logger.Debugf("compiled %s [%s]", name, defines.Key())
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Pipeline), nil
}

// Warm compiles every requested variant in parallel and returns the first error.
//
// Parameters:
//   - ctx: cancels remaining builds once one fails
//   - reqs: the variants to compile
//
// Returns:
//   - error: the first build error, or the context error
func (c *Cache) Warm(ctx context.Context, reqs []Request) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, r := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := c.Get(r.Name, r.Defines, r.Factory)
			return err
		})
	}
	return g.Wait()
}

// Invalidate releases every cached pipeline. The next Get of any variant rebuilds it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	for key, p := range c.entries {
		c.compiler.ReleasePipeline(p)
		c.group.Forget(key)
	}
	for _, p := range c.orphans {
		c.compiler.ReleasePipeline(p)
	}
	c.entries = make(map[string]Pipeline)
	c.orphans = nil
	c.generation++
	c.stats.Invalidations++
	logger.Noticef("pipeline cache invalidated, %d pipelines released", n)
}

// Len returns the number of cached pipelines.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a copy of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
