// Package profiler tracks frame timing and memory statistics of the render loop.
package profiler

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-stf/log"
	"github.com/olekukonko/tablewriter"
)

var logger = log.New("profiler")

// Counter is one extra row of the shutdown summary.
type Counter struct {
	Name  string
	Value int
}

// Profiler tracks frame rate, frame time and memory statistics.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	mu sync.Mutex

	frameCount     int
	frameTime      time.Duration
	worstFrame     time.Duration
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	totalFrames    int
	totalFrameTime time.Duration
	started        time.Time
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	now := time.Now()
	return &Profiler{
		lastTime:       now,
		started:        now,
		updateInterval: time.Second,
	}
}

// SetInterval changes how often Tick logs.
func (p *Profiler) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d > 0 {
		p.updateInterval = d
	}
}

// Tick should be called once per frame with the CPU time the frame took to record.
// Logs performance statistics when the update interval has elapsed: FPS, average and
// worst frame time, heap usage, allocation rate and GC pauses.
//
// Parameters:
//   - frameTime: the time spent recording and submitting the frame
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(frameTime time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	p.totalFrames++
	p.frameTime += frameTime
	p.totalFrameTime += frameTime
	p.worstFrame = max(p.worstFrame, frameTime)

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()
	avg := p.frameTime / time.Duration(p.frameCount)

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var maxPauseUs uint64
	// PauseNs is a circular buffer of the last 256 pauses
	startIdx := p.lastGCCount
	if gcCount-startIdx > 256 {
		startIdx = gcCount - 256
	}
	for i := startIdx; i < gcCount; i++ {
		maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	logger.Infof("FPS: %.2f | frame: %s avg, %s worst | heap: %.2f MB | alloc rate: %.2f MB/s | GC: %d (max pause %d µs)",
		fps, avg.Round(time.Microsecond), p.worstFrame.Round(time.Microsecond), allocMB, allocRateMB, gcCount, maxPauseUs)

	p.frameCount = 0
	p.frameTime = 0
	p.worstFrame = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Frames returns the number of frames ticked since construction.
func (p *Profiler) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFrames
}

// AverageFrameTime returns the mean frame time since construction.
func (p *Profiler) AverageFrameTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalFrames == 0 {
		return 0
	}
	return p.totalFrameTime / time.Duration(p.totalFrames)
}

// Summary renders the lifetime statistics as a table.
//
// Parameters:
//   - counters: extra rows printed after the frame count
//
// Returns:
//   - string: the rendered table
func (p *Profiler) Summary(counters ...Counter) string {
	frames, avg := p.Frames(), p.AverageFrameTime()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Statistic", "Value"})
	table.Append([]string{"Frames", fmt.Sprint(frames)})
	for _, c := range counters {
		table.Append([]string{c.Name, fmt.Sprint(c.Value)})
	}
	table.Append([]string{"Average frame time", avg.Round(time.Microsecond).String()})
	table.SetFooter([]string{"Wall time", time.Since(p.started).Round(time.Millisecond).String()})
	table.Render()
	return buf.String()
}
