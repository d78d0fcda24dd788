// Package fingerprint implements a streaming, landmark-based audio
// fingerprint generator in the style of Shazam's constellation maps: a
// sliding short-time spectrogram, an adaptive per-bin threshold, and
// delayed pairing of nearby spectral peaks into hashes.
package fingerprint

import "math"

const (
	// SamplingRate is the input PCM rate (Hz); the caller is responsible
	// for resampling upstream of the fingerprinter.
	SamplingRate = 44100
	// BytesPerSample is the PCM sample width (16-bit signed little-endian).
	BytesPerSample = 2

	// NFFT is the FFT window length.
	NFFT = 64
	// Step is the hop size between consecutive frames (50% overlap).
	Step = NFFT / 2
	// Bins is the number of magnitude bins per frame.
	Bins = NFFT / 2

	// MaxPeaksPerFrame bounds how many local maxima are retained per frame.
	MaxPeaksPerFrame = 10
	// MaxFingerprintsPerAnchor bounds emissions per anchor frame, shared
	// across all peaks at that frame.
	MaxFingerprintsPerAnchor = 10

	// IFMin and IFMax bound the frequency bins eligible for peak picking
	// and pairing.
	IFMin = 0
	IFMax = Bins

	// WindowDF is the maximum |Δbin| allowed between paired peaks.
	WindowDF = 80
	// WindowDT is the maximum Δframe (into the past) a pair may span.
	WindowDT = 120
	// PruningDT is the number of frames of latency before a frame's peaks
	// are finalized into anchors.
	PruningDT = 32

	// MaskDF scales the Gaussian mask width on the frequency axis.
	MaskDF = 3.0
	// MaskDecayLog is the per-frame log-domain threshold decrement.
	MaskDecayLog = -0.01005033585350145 // ln(0.99)

	// epsilon guards every logarithm against non-positive input.
	epsilon = 1e-6

	// invalidBin marks a peak slot invalidated by pruning.
	invalidBin = -1
)

var negInf = math.Inf(-1)

// effectiveWindowDF caps WindowDF at Bins, since no pair of bins can
// ever differ by more than the total bin count.
func effectiveWindowDF() int {
	if WindowDF > Bins {
		return Bins
	}
	return WindowDF
}

// Fingerprint is the ⟨time_ms, hash⟩ record emitted by the fingerprinter
// and consumed by the matcher.
type Fingerprint struct {
	TimeMs float64
	Hash   int64
}

// Batch is one emission unit: parallel slices of anchor times (ms) and
// packed hashes, preserving the streaming contract's tcodes/hcodes shape.
type Batch struct {
	TCodes []float64
	HCodes []int64
}

// Flatten turns a batch into a slice of Fingerprint records.
func (b Batch) Flatten() []Fingerprint {
	out := make([]Fingerprint, len(b.TCodes))
	for i := range b.TCodes {
		out[i] = Fingerprint{TimeMs: b.TCodes[i], Hash: b.HCodes[i]}
	}
	return out
}

// PackHash packs a past bin, an anchor bin, and a frame delta into a
// single integer: f_past + (NFFT/2)*(f_anchor + (NFFT/2)*dt).
func PackHash(fPast, fAnchor, dt int) int64 {
	return int64(fPast) + int64(Bins)*(int64(fAnchor)+int64(Bins)*int64(dt))
}

// UnpackHash is the inverse of PackHash, used by tests to check the
// decoded bins and delta stay within their documented ranges.
func UnpackHash(hash int64) (fPast, fAnchor, dt int) {
	fPast = int(hash % int64(Bins))
	hash /= int64(Bins)
	fAnchor = int(hash % int64(Bins))
	dt = int(hash / int64(Bins))
	return
}

// timeMs converts a frame index to milliseconds.
func timeMs(frame int) float64 {
	return float64(frame) * float64(Step) * 1000.0 / float64(SamplingRate)
}
