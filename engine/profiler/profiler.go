package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"go.uber.org/zap"
)

// Profiler tracks frame rate and memory statistics for performance monitoring.
// Reports to the logger and, when set, to the Prometheus gauges at a configurable interval.
type Profiler struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	lastSample Sample
}

// Sample is one report of the profiler.
type Sample struct {
	FPS         float64
	HeapBytes   uint64
	SysBytes    uint64
	AllocRateMB float64
	GCCycles    uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - logger: the logger samples are written to, nil disables logging
//   - m: the metrics collectors, may be nil
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger *zap.Logger, m *metrics.Metrics) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{
		logger:         logger.Named("profiler"),
		metrics:        m,
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// SetInterval changes how often samples are reported.
//
// Parameters:
//   - d: the interval, ignored when not positive
func (p *Profiler) SetInterval(d time.Duration) {
	if d > 0 {
		p.updateInterval = d
	}
}

// LastSample returns the most recent report.
func (p *Profiler) LastSample() Sample {
	return p.lastSample
}

// Tick should be called once per frame to track frame timing.
// Reports performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were reported this tick, false otherwise
func (p *Profiler) Tick() bool {
	return p.tickAt(time.Now())
}

func (p *Profiler) tickAt(now time.Time) bool {
	p.frameCount++
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)

	s := Sample{
		FPS:       float64(p.frameCount) / elapsed.Seconds(),
		HeapBytes: p.memStats.Alloc,
		SysBytes:  p.memStats.Sys,
		GCCycles:  p.memStats.NumGC,
	}
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	s.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	if s.GCCycles > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		s.LastPauseUs = p.memStats.PauseNs[(s.GCCycles+255)%256] / 1000

		startIdx := p.lastGCCount
		if s.GCCycles-startIdx > 256 {
			startIdx = s.GCCycles - 256
		}
		for i := startIdx; i < s.GCCycles; i++ {
			s.MaxPauseUs = max(s.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.Info("frame stats",
		zap.Float64("fps", s.FPS),
		zap.Float64("heap_mb", float64(s.HeapBytes)/1024/1024),
		zap.Float64("alloc_rate_mb_s", s.AllocRateMB),
		zap.Uint32("gc", s.GCCycles),
		zap.Uint64("gc_last_pause_us", s.LastPauseUs),
		zap.Uint64("gc_max_pause_us", s.MaxPauseUs),
		zap.Float64("sys_mb", float64(s.SysBytes)/1024/1024),
	)
	if p.metrics != nil {
		p.metrics.FPS.Set(s.FPS)
		p.metrics.HeapBytes.Set(float64(s.HeapBytes))
		p.metrics.GCCycles.Set(float64(s.GCCycles))
	}

	p.lastSample = s
	p.frameCount = 0
	p.lastTime = now
	p.lastGCCount = s.GCCycles
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
