package overlay

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpectrumBandsSilenceProducesZeroBands(t *testing.T) {
	samples := make([]float32, 512)
	bands := SpectrumBands(samples, 16000, 8)
	require.Len(t, bands, 8)
	for _, b := range bands {
		require.InDelta(t, 0, b, 1e-9)
	}
}

func TestSpectrumBandsToneRaisesItsBand(t *testing.T) {
	const sampleRate = 16000
	const freq = 1000.0
	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}

	bands := SpectrumBands(samples, sampleRate, 8)
	require.Len(t, bands, 8)

	maxIdx := 0
	for i, b := range bands {
		if b > bands[maxIdx] {
			maxIdx = i
		}
	}
	require.Greater(t, bands[maxIdx], 0.0)
}

func TestSpectrumBandsZeroCountReturnsEmpty(t *testing.T) {
	bands := SpectrumBands(make([]float32, 128), 16000, 0)
	require.Empty(t, bands)
}

func TestSmootherBlendsTowardNewValueOverTime(t *testing.T) {
	s := NewSmoother(0.6, 2)
	first := s.Apply([]float64{1, 1})
	require.InDelta(t, 0.4, first[0], 1e-9)

	second := s.Apply([]float64{1, 1})
	require.Greater(t, second[0], first[0])
	require.LessOrEqual(t, second[0], 1.0)
}

func TestSmootherResizesWhenBandCountChanges(t *testing.T) {
	s := NewSmoother(0.5, 2)
	s.Apply([]float64{1, 1})
	out := s.Apply([]float64{0.2, 0.4, 0.6})
	require.Len(t, out, 3)
}
