package fingerprint

import "math"

// hannWindow and gaussianMask are module-level, immutable, process-wide
// constants computed once at package init and read directly, never
// written, by every Fingerprinter instance.
var (
	hannWindow   [NFFT]float64
	gaussianMask [Bins][Bins]float64
)

func init() {
	for i := 0; i < NFFT; i++ {
		hannWindow[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(NFFT-1)))
	}
	for i := 0; i < Bins; i++ {
		width := MaskDF * math.Sqrt(float64(i)+3)
		for j := 0; j < Bins; j++ {
			d := float64(j-i) / width
			gaussianMask[i][j] = -0.5 * d * d
		}
	}
}
