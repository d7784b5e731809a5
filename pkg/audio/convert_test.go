package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/alvinbot/alvin/pkg/audio"
)

// pcm16 packs int16 samples into little-endian PCM bytes.
func pcm16(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// samples16 unpacks little-endian PCM bytes back into int16 samples.
func samples16(t *testing.T, pcm []byte) []int16 {
	t.Helper()
	if len(pcm)%2 != 0 {
		t.Fatalf("pcm has odd length %d", len(pcm))
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func TestFormat_String(t *testing.T) {
	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 16000, Channels: 1}, "16000Hz mono"},
		{audio.Format{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestMonoToStereo_DuplicatesEachSample(t *testing.T) {
	got := samples16(t, audio.MonoToStereo(pcm16(7, -300, 12000)))
	want := []int16{7, 7, -300, -300, 12000, 12000}
	if !slices.Equal(got, want) {
		t.Errorf("MonoToStereo = %v, want %v", got, want)
	}
}

func TestMonoToStereo_TrailingByteIgnored(t *testing.T) {
	in := append(pcm16(7, -300), 0xAB)
	got := samples16(t, audio.MonoToStereo(in))
	want := []int16{7, 7, -300, -300}
	if !slices.Equal(got, want) {
		t.Errorf("MonoToStereo = %v, want %v (odd trailing byte dropped)", got, want)
	}
}

func TestStereoToMono_AveragesEachFrame(t *testing.T) {
	tests := []struct {
		l, r, want int16
	}{
		{100, 200, 150},
		{-50, 50, 0},
		{32767, 32767, 32767},
		{-32768, -32768, -32768},
		{3, 4, 3}, // integer division truncates toward zero
		{-3, -4, -3},
	}
	for _, tt := range tests {
		got := samples16(t, audio.StereoToMono(pcm16(tt.l, tt.r)))
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("StereoToMono(L=%d, R=%d) = %v, want [%d]", tt.l, tt.r, got, tt.want)
		}
	}
}

func TestResample16_UpsampleInterpolates(t *testing.T) {
	// Doubling 24kHz mono: midpoints appear between neighbours and the
	// final frame is held once the source runs out.
	got := samples16(t, audio.Resample16(pcm16(0, 100), 1, 24000, 48000))
	want := []int16{0, 50, 100, 100}
	if !slices.Equal(got, want) {
		t.Errorf("Resample16 = %v, want %v", got, want)
	}
}

func TestResample16_DownsampleDecimates(t *testing.T) {
	got := samples16(t, audio.Resample16(pcm16(10, 20, 30, 40, 50, 60), 1, 48000, 16000))
	want := []int16{10, 40}
	if !slices.Equal(got, want) {
		t.Errorf("Resample16 = %v, want %v", got, want)
	}
}

func TestResample16_StereoChannelsStayAligned(t *testing.T) {
	in := pcm16(100, -100, 200, -200)
	got := samples16(t, audio.Resample16(in, 2, 24000, 48000))
	want := []int16{100, -100, 150, -150, 200, -200, 200, -200}
	if !slices.Equal(got, want) {
		t.Errorf("Resample16 = %v, want %v", got, want)
	}
}

func TestResample16_DegenerateArgsReturnInput(t *testing.T) {
	in := pcm16(100, 200)
	tests := []struct {
		name             string
		channels         int
		srcRate, dstRate int
	}{
		{"same rate", 1, 48000, 48000},
		{"zero source rate", 1, 0, 48000},
		{"zero target rate", 1, 48000, 0},
		{"negative rate", 1, -1, 48000},
		{"zero channels", 0, 24000, 48000},
	}
	for _, tt := range tests {
		out := audio.Resample16(in, tt.channels, tt.srcRate, tt.dstRate)
		if len(out) == 0 || &out[0] != &in[0] {
			t.Errorf("%s: expected the input slice back, got %d bytes", tt.name, len(out))
		}
	}
}

func TestResample16_SubFrameOutputIsNil(t *testing.T) {
	// One 48kHz frame cannot produce even a single 16kHz frame.
	if out := audio.Resample16(pcm16(500), 1, 48000, 16000); out != nil {
		t.Errorf("expected nil, got %d bytes", len(out))
	}
}

func TestFormatConverter_MatchingFormatSharesBuffer(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	in := pcm16(100, 200)
	out := conv.Convert(in, audio.Format{SampleRate: 48000, Channels: 2})
	if len(out) == 0 || &out[0] != &in[0] {
		t.Error("expected the input slice back for a matching format")
	}
}

func TestFormatConverter_ResamplesThenUpmixes(t *testing.T) {
	// The 24kHz mono synthesis format headed for 48kHz stereo playback.
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	out := conv.Convert(pcm16(1000, 2000), audio.Format{SampleRate: 24000, Channels: 1})
	got := samples16(t, out)
	want := []int16{1000, 1000, 1500, 1500, 2000, 2000, 2000, 2000}
	if !slices.Equal(got, want) {
		t.Errorf("Convert = %v, want %v", got, want)
	}
}

func TestFormatConverter_Downmixes(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 1}}
	out := conv.Convert(pcm16(100, 200, 300, 500), audio.Format{SampleRate: 48000, Channels: 2})
	got := samples16(t, out)
	want := []int16{150, 400}
	if !slices.Equal(got, want) {
		t.Errorf("Convert = %v, want %v", got, want)
	}
}

func TestFormatConverter_OddByteClipDropped(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 1}}
	if out := conv.Convert([]byte{1, 2, 3}, audio.Format{SampleRate: 48000, Channels: 1}); out != nil {
		t.Errorf("expected nil for an odd byte count, got %d bytes", len(out))
	}
}
