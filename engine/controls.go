package engine

import (
	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
)

// Binding is the effect of one runtime key.
type Binding struct {
	Name string
	// Mutation edits the pending configuration. Nil for bindings that only flush pipelines.
	Mutation config.Mutation
	// RecreatePipelines flushes the pipeline cache at the next frame boundary.
	RecreatePipelines bool
}

func setProducer(m config.ProducerMode) config.Mutation {
	return func(c *config.RenderConfiguration) { c.ProducerMode = m }
}

func setAAMode(m config.AAMode) config.Mutation {
	return func(c *config.RenderConfiguration) { c.AAMode = m }
}

// Bindings maps key codes to the runtime toggles of the sample.
var Bindings = map[uint32]Binding{
	common.KeySpace: {Name: "toggle animations", Mutation: func(c *config.RenderConfiguration) {
		c.EnableAnimations = !c.EnableAnimations
	}},
	common.KeyF1: {Name: "producer RayGen", Mutation: setProducer(config.ProducerRayGen)},
	common.KeyF2: {Name: "producer Compute", Mutation: setProducer(config.ProducerCompute)},
	common.KeyF3: {Name: "producer Raster", Mutation: setProducer(config.ProducerRaster)},
	common.KeyF5: {Name: "anti-aliasing off", Mutation: setAAMode(config.AAModeNone)},
	common.KeyF6: {Name: "anti-aliasing TAA", Mutation: setAAMode(config.AAModeTAA)},
	common.KeyF7: {Name: "anti-aliasing upscaled", Mutation: setAAMode(config.AAModeUpscaled)},
	common.KeyF8: {Name: "cycle sampler", Mutation: func(c *config.RenderConfiguration) {
		c.SamplerType = c.SamplerType.Next()
	}},
	common.KeyF9: {Name: "freeze frame index", Mutation: func(c *config.RenderConfiguration) {
		c.FreezeFrameIndex = !c.FreezeFrameIndex
	}},
	common.KeyF10: {Name: "recreate pipelines", RecreatePipelines: true},
	common.KeyQ: {Name: "cycle quality", Mutation: func(c *config.RenderConfiguration) {
		c.Quality = c.Quality.Next()
	}},
}

// Apply queues the binding on p.
func (b Binding) Apply(p *config.Pending) {
	if b.Mutation != nil {
		p.Enqueue(b.Mutation)
	}
	if b.RecreatePipelines {
		p.RecreatePipelines()
	}
}

// Title returns the window title for a base title and producer.
func Title(base string, mode config.ProducerMode) string {
	return base + " " + mode.Title()
}
