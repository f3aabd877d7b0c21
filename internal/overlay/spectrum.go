// Package overlay implements C11, the standalone overlay renderer process:
// a small Wayland layer-shell client that mirrors session state from the
// daemon's overlaybus sockets. It has no corpus grounding for either the
// Wayland wire protocol or FFT-based spectrum analysis, so both are built
// directly on the standard library per SPEC_FULL.md's C11 section.
package overlay

import (
	"math"
	"math/cmplx"
)

// SpectrumBands computes count logarithmically-spaced magnitude bands
// between 100Hz and 7kHz from one window of mono float32 samples at
// sampleRate, applying a Hanning window before the FFT. The result is
// normalized to [0,1] per band via a fixed reference magnitude so the
// overlay's bar heights stay stable across utterances.
func SpectrumBands(samples []float32, sampleRate int, count int) []float64 {
	if count <= 0 || len(samples) == 0 || sampleRate <= 0 {
		return make([]float64, count)
	}

	n := nextPowerOfTwo(len(samples))
	windowed := make([]complex128, n)
	for i, s := range samples {
		w := hann(i, len(samples))
		windowed[i] = complex(float64(s)*w, 0)
	}

	spectrum := fft(windowed)
	magnitudes := make([]float64, n/2)
	for i := range magnitudes {
		magnitudes[i] = cmplx.Abs(spectrum[i]) / float64(n)
	}

	edges := logBandEdges(100, 7000, count, sampleRate, n)
	bands := make([]float64, count)
	for b := 0; b < count; b++ {
		lo, hi := edges[b], edges[b+1]
		if hi <= lo {
			hi = lo + 1
		}
		var sum float64
		var samplesInBand int
		for bin := lo; bin < hi && bin < len(magnitudes); bin++ {
			sum += magnitudes[bin]
			samplesInBand++
		}
		if samplesInBand == 0 {
			continue
		}
		bands[b] = normalizeMagnitude(sum / float64(samplesInBand))
	}
	return bands
}

const referenceMagnitude = 0.05

func normalizeMagnitude(mag float64) float64 {
	v := mag / referenceMagnitude
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func hann(i, n int) float64 {
	if n <= 1 {
		return 1
	}
	return 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
}

func logBandEdges(minHz, maxHz float64, count, sampleRate, fftSize int) []int {
	edges := make([]int, count+1)
	logMin := math.Log10(minHz)
	logMax := math.Log10(maxHz)
	for i := 0; i <= count; i++ {
		frac := float64(i) / float64(count)
		hz := math.Pow(10, logMin+frac*(logMax-logMin))
		edges[i] = int(hz * float64(fftSize) / float64(sampleRate))
	}
	return edges
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	if p == 0 {
		p = 1
	}
	return p
}

// fft computes the discrete Fourier transform of x (length must be a power
// of two) via the recursive Cooley-Tukey algorithm.
func fft(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		return x
	}

	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}

	fEven := fft(even)
	fOdd := fft(odd)

	result := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		twiddle := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n))) * fOdd[k]
		result[k] = fEven[k] + twiddle
		result[k+n/2] = fEven[k] - twiddle
	}
	return result
}

// Smoother applies the configured temporal smoothing factor between
// consecutive spectrum frames, per SPEC_FULL.md's animations.spectrum_smoothing.
type Smoother struct {
	alpha   float64
	current []float64
}

// NewSmoother builds a Smoother with alpha in [0,1]: higher alpha weights
// the previous frame more heavily, producing slower-moving bars.
func NewSmoother(alpha float64, bands int) *Smoother {
	return &Smoother{alpha: alpha, current: make([]float64, bands)}
}

// Apply blends next into the smoother's running state and returns it.
func (s *Smoother) Apply(next []float64) []float64 {
	if len(s.current) != len(next) {
		s.current = make([]float64, len(next))
	}
	for i, v := range next {
		s.current[i] = s.alpha*s.current[i] + (1-s.alpha)*v
	}
	out := make([]float64, len(s.current))
	copy(out, s.current)
	return out
}
