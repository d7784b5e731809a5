package discord

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/alvinbot/alvin/internal/pipeline"
)

// stage indexes the per-stage latency windows.
type stage int

const (
	stageSTT stage = iota
	stageLLM
	stageTTS
	numStages
)

// defaultStatsWindow is the number of latency samples retained per stage
// when the caller does not pick a size.
const defaultStatsWindow = 100

// PipelineStats is the in-process view of pipeline timings behind the
// status embed. Each stage keeps a sliding window of its most recent
// latency samples; percentiles are computed from the window on demand so
// recording stays cheap on the hot path.
//
// It implements [pipeline.StatsRecorder] and is safe for concurrent use.
type PipelineStats struct {
	mu      sync.Mutex
	windows [numStages]latencyWindow

	utterances int64
	errors     int64
}

var _ pipeline.StatsRecorder = (*PipelineStats)(nil)

// NewPipelineStats creates a PipelineStats retaining up to windowSize
// latency samples per stage. windowSize <= 0 selects the default.
func NewPipelineStats(windowSize int) *PipelineStats {
	if windowSize <= 0 {
		windowSize = defaultStatsWindow
	}
	ps := &PipelineStats{}
	for i := range ps.windows {
		ps.windows[i] = latencyWindow{samples: make([]time.Duration, windowSize)}
	}
	return ps
}

func (ps *PipelineStats) record(s stage, d time.Duration) {
	ps.mu.Lock()
	ps.windows[s].push(d)
	ps.mu.Unlock()
}

// RecordSTT records one speech-to-text latency sample.
func (ps *PipelineStats) RecordSTT(d time.Duration) { ps.record(stageSTT, d) }

// RecordLLM records one language model latency sample.
func (ps *PipelineStats) RecordLLM(d time.Duration) { ps.record(stageLLM, d) }

// RecordTTS records one text-to-speech latency sample.
func (ps *PipelineStats) RecordTTS(d time.Duration) { ps.record(stageTTS, d) }

// IncrUtterances counts one transcript that produced text.
func (ps *PipelineStats) IncrUtterances() {
	ps.mu.Lock()
	ps.utterances++
	ps.mu.Unlock()
}

// IncrErrors counts one failed stage call.
func (ps *PipelineStats) IncrErrors() {
	ps.mu.Lock()
	ps.errors++
	ps.mu.Unlock()
}

// LatencyPercentiles holds the p50 and p95 of one stage's sample window.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// Snapshot is a point-in-time copy of all pipeline statistics.
type Snapshot struct {
	STT        LatencyPercentiles
	LLM        LatencyPercentiles
	TTS        LatencyPercentiles
	Utterances int64
	Errors     int64
}

// Snapshot computes percentiles over the current windows and returns them
// together with the counters.
func (ps *PipelineStats) Snapshot() Snapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Snapshot{
		STT:        ps.windows[stageSTT].percentiles(),
		LLM:        ps.windows[stageLLM].percentiles(),
		TTS:        ps.windows[stageTTS].percentiles(),
		Utterances: ps.utterances,
		Errors:     ps.errors,
	}
}

// latencyWindow retains the most recent samples in a fixed-size circular
// slice. total counts every sample ever pushed; both the write position
// and the number of valid samples derive from it.
type latencyWindow struct {
	samples []time.Duration
	total   int
}

func (w *latencyWindow) push(d time.Duration) {
	w.samples[w.total%len(w.samples)] = d
	w.total++
}

// percentiles sorts a copy of the valid samples and picks p50 and p95 by
// nearest rank.
func (w *latencyWindow) percentiles() LatencyPercentiles {
	n := min(w.total, len(w.samples))
	if n == 0 {
		return LatencyPercentiles{}
	}
	sorted := slices.Clone(w.samples[:n])
	slices.Sort(sorted)
	return LatencyPercentiles{
		P50: nearestRank(sorted, 0.50),
		P95: nearestRank(sorted, 0.95),
	}
}

// nearestRank returns the sample at percentile p (0..1] of a sorted,
// non-empty window.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
