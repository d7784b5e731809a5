package discord

import (
	"sync"
	"testing"
	"time"
)

func TestPipelineStats_DefaultWindowEvictsOldest(t *testing.T) {
	t.Parallel()

	// 150 increasing samples against the default window of 100: the
	// window must hold 51ms..150ms when the snapshot is taken.
	ps := NewPipelineStats(0)
	for i := 1; i <= 150; i++ {
		ps.RecordSTT(time.Duration(i) * time.Millisecond)
	}

	snap := ps.Snapshot()
	if snap.STT.P50 != 100*time.Millisecond {
		t.Errorf("STT P50 = %v, want 100ms", snap.STT.P50)
	}
	if snap.STT.P95 != 145*time.Millisecond {
		t.Errorf("STT P95 = %v, want 145ms", snap.STT.P95)
	}
}

func TestPipelineStats_StagesAreIndependent(t *testing.T) {
	t.Parallel()

	ps := NewPipelineStats(16)
	for range 4 {
		ps.RecordSTT(10 * time.Millisecond)
		ps.RecordLLM(700 * time.Millisecond)
		ps.RecordTTS(250 * time.Millisecond)
	}

	snap := ps.Snapshot()
	for _, tc := range []struct {
		name string
		got  LatencyPercentiles
		want time.Duration
	}{
		{"STT", snap.STT, 10 * time.Millisecond},
		{"LLM", snap.LLM, 700 * time.Millisecond},
		{"TTS", snap.TTS, 250 * time.Millisecond},
	} {
		if tc.got.P50 != tc.want || tc.got.P95 != tc.want {
			t.Errorf("%s = p50 %v p95 %v, want both %v", tc.name, tc.got.P50, tc.got.P95, tc.want)
		}
	}
}

func TestPipelineStats_SingleSample(t *testing.T) {
	t.Parallel()

	ps := NewPipelineStats(10)
	ps.RecordLLM(42 * time.Millisecond)

	snap := ps.Snapshot()
	if snap.LLM.P50 != 42*time.Millisecond || snap.LLM.P95 != 42*time.Millisecond {
		t.Errorf("LLM = p50 %v p95 %v, want both 42ms", snap.LLM.P50, snap.LLM.P95)
	}
}

func TestPipelineStats_EmptySnapshotIsZero(t *testing.T) {
	t.Parallel()

	snap := NewPipelineStats(10).Snapshot()
	if snap != (Snapshot{}) {
		t.Errorf("snapshot of fresh stats = %+v, want zero value", snap)
	}
}

func TestPipelineStats_TinyWindowForgetsSpikes(t *testing.T) {
	t.Parallel()

	ps := NewPipelineStats(2)
	ps.RecordTTS(100 * time.Millisecond)
	ps.RecordTTS(200 * time.Millisecond)
	ps.RecordTTS(5 * time.Millisecond)
	ps.RecordTTS(5 * time.Millisecond)

	snap := ps.Snapshot()
	if snap.TTS.P95 != 5*time.Millisecond {
		t.Errorf("TTS P95 = %v, want 5ms once the spikes fell out of the window", snap.TTS.P95)
	}
}

func TestPipelineStats_ConcurrentUse(t *testing.T) {
	t.Parallel()

	ps := NewPipelineStats(64)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				ps.RecordSTT(30 * time.Millisecond)
				ps.IncrUtterances()
				ps.IncrErrors()
				_ = ps.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := ps.Snapshot()
	if snap.Utterances != 200 {
		t.Errorf("Utterances = %d, want 200", snap.Utterances)
	}
	if snap.Errors != 200 {
		t.Errorf("Errors = %d, want 200", snap.Errors)
	}
	if snap.STT.P50 != 30*time.Millisecond {
		t.Errorf("STT P50 = %v, want 30ms", snap.STT.P50)
	}
}

func TestNearestRank(t *testing.T) {
	t.Parallel()

	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	tests := []struct {
		name   string
		sorted []time.Duration
		p      float64
		want   time.Duration
	}{
		{"one sample p50", []time.Duration{ms(100)}, 0.50, ms(100)},
		{"one sample p95", []time.Duration{ms(100)}, 0.95, ms(100)},
		{"pair p50 takes lower", []time.Duration{ms(10), ms(20)}, 0.50, ms(10)},
		{"pair p95 takes upper", []time.Duration{ms(10), ms(20)}, 0.95, ms(20)},
		{"twenty p95", []time.Duration{ms(1), ms(2), ms(3), ms(4), ms(5), ms(6), ms(7), ms(8), ms(9), ms(10), ms(11), ms(12), ms(13), ms(14), ms(15), ms(16), ms(17), ms(18), ms(19), ms(20)}, 0.95, ms(19)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := nearestRank(tt.sorted, tt.p); got != tt.want {
				t.Errorf("nearestRank(%v, %.2f) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}
