package fingerprint

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// bufferSoftCap is the approximate byte threshold past which the
// internal sample buffer is compacted.
const bufferSoftCap = 1_000_000

// Fingerprinter is a streaming transformer: PCM bytes in, fingerprint
// records out. It is not safe for concurrent use — a single instance
// is fed sequentially from one goroutine. Two instances may run
// concurrently on separate goroutines since all working state lives
// on the struct, not in package-level scratch.
type Fingerprinter struct {
	buf        []byte
	baseSample int // sample index of buf[0]
	odd        []byte // a single leftover byte when Push ends mid-sample

	frame int // next frame index to process

	threshold [Bins]float64
	ring      markRing

	window   [NFFT]float64
	diff     [Bins]float64
	boostedv [Bins]float64 // per-frame scratch: boosted magnitude by bin

	lastAnchorEmitted int // highest t0 already processed (-1 = none)
	finished          bool
}

// NewFingerprinter creates a Fingerprinter ready to accept PCM bytes.
func NewFingerprinter() *Fingerprinter {
	f := &Fingerprinter{lastAnchorEmitted: -1}
	return f
}

// Push feeds a chunk of signed 16-bit little-endian mono PCM bytes and
// returns any fingerprints that could be finalized as a result. Chunks
// are boundary-agnostic: a sample split across two Push calls is
// buffered whole, and the split point never affects the fingerprints
// produced.
func (f *Fingerprinter) Push(data []byte) []Fingerprint {
	if f.finished {
		return nil
	}
	if len(f.odd) > 0 {
		data = append(f.odd, data...)
		f.odd = nil
	}
	if len(data)%BytesPerSample != 0 {
		f.odd = append(f.odd, data[len(data)-1])
		data = data[:len(data)-1]
	}
	f.buf = append(f.buf, data...)

	var out []Fingerprint
	for f.haveFrame(f.frame) {
		out = append(out, f.processFrame(f.frame)...)
		f.frame++
	}
	f.compact()
	return out
}

// Finish signals end-of-stream. Any anchor whose pruning window never
// closed before the stream ended is dropped — a deliberate loss, not a
// bug: such an anchor's peaks were never finalized against the full
// PruningDT lookahead the algorithm relies on for correctness.
func (f *Fingerprinter) Finish() []Fingerprint {
	f.finished = true
	f.buf = nil
	f.odd = nil
	return nil
}

func (f *Fingerprinter) haveFrame(frame int) bool {
	start := frame * Step
	end := start + NFFT
	return end <= f.baseSample+len(f.buf)/BytesPerSample
}

func (f *Fingerprinter) sampleAt(abs int) int16 {
	off := (abs - f.baseSample) * BytesPerSample
	lo := f.buf[off]
	hi := f.buf[off+1]
	return int16(uint16(lo) | uint16(hi)<<8)
}

// compact drops buffered bytes that can never be read again, advancing
// baseSample, once the buffer has grown past the soft cap.
func (f *Fingerprinter) compact() {
	if len(f.buf) <= bufferSoftCap {
		return
	}
	nextStart := f.frame * Step
	drop := nextStart - f.baseSample
	if drop <= 0 {
		return
	}
	dropBytes := drop * BytesPerSample
	if dropBytes > len(f.buf) {
		dropBytes = len(f.buf)
	}
	f.buf = append(f.buf[:0], f.buf[dropBytes:]...)
	f.baseSample += dropBytes / BytesPerSample
}

// processFrame runs the per-frame pipeline — windowed FFT, adaptive
// threshold comparison, local-maximum peak picking, threshold bump,
// back-pruning, anchor finalization, and threshold decay — and returns
// any fingerprints emitted for the anchor finalized this frame.
func (f *Fingerprinter) processFrame(frame int) []Fingerprint {
	start := frame * Step
	const scale = 1.0 / float64(int(1)<<(8*BytesPerSample-1))
	for i := 0; i < NFFT; i++ {
		s := f.sampleAt(start + i)
		f.window[i] = float64(s) * hannWindow[i] * scale
	}

	spectrum := fft.FFTReal(f.window[:])

	mark := f.ring.at(frame)
	mark.reset(frame)

	for i := IFMin; i < IFMax; i++ {
		mag := cmplxAbs(spectrum[i]) * math.Sqrt(float64(i)+16)
		f.boostedv[i] = mag
		ln := math.Log(math.Max(epsilon, mag))
		d := ln - f.threshold[i]
		if d < 0 {
			d = 0
		}
		f.diff[i] = d
	}

	for i := IFMin + 1; i < IFMax-1; i++ {
		if f.diff[i] > f.diff[i-1] && f.diff[i] > f.diff[i+1] {
			mark.insert(i, f.boostedv[i])
		}
	}

	for idx := 0; idx < mark.n; idx++ {
		p := mark.bins[idx]
		v := mark.mags[idx]
		lnv := math.Log(math.Max(epsilon, v))
		for j := IFMin; j < IFMax; j++ {
			bumped := lnv + gaussianMask[p][j]
			if bumped > f.threshold[j] {
				f.threshold[j] = bumped
			}
		}
	}

	f.backPrune(frame)

	var emitted []Fingerprint
	t0 := frame - PruningDT - 1
	if t0 >= 0 && t0 > f.lastAnchorEmitted {
		emitted = f.emitAnchor(t0)
		f.lastAnchorEmitted = t0
	}

	for j := 0; j < Bins; j++ {
		f.threshold[j] += MaskDecayLog
	}

	return emitted
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// backPrune invalidates peaks in [max(0,frame-PruningDT), frame] whose
// magnitude has fallen below the current threshold once the additional
// decay since that frame's mark is accounted for.
func (f *Fingerprinter) backPrune(frame int) {
	lo := frame - PruningDT
	if lo < 0 {
		lo = 0
	}
	for j := lo; j <= frame; j++ {
		m := f.ring.at(j)
		if m.frame != j {
			continue
		}
		framesSince := float64(frame - j)
		for idx := 0; idx < m.n; idx++ {
			p := m.bins[idx]
			v := m.mags[idx]
			if p == invalidBin || v == negInf {
				continue
			}
			if p == 0 {
				continue // DC/reserved, exempt from pruning
			}
			if math.Log(math.Max(epsilon, v)) < f.threshold[p]+MaskDecayLog*framesSince {
				m.bins[idx] = invalidBin
				m.mags[idx] = negInf
			}
		}
	}
}

// emitAnchor pairs every still-valid peak at frame t0 against valid
// peaks in [max(0,t0-WindowDT), t0], capped at MaxFingerprintsPerAnchor
// total emissions for this anchor frame (shared across all peaks at
// t0, not per individual peak).
func (f *Fingerprinter) emitAnchor(t0 int) []Fingerprint {
	anchor := f.ring.at(t0)
	if anchor.frame != t0 {
		return nil
	}
	maxDF := effectiveWindowDF()
	lo := t0 - WindowDT
	if lo < 0 {
		lo = 0
	}
	tMs := timeMs(t0)

	var out []Fingerprint
	count := 0
outer:
	for pi := 0; pi < anchor.n; pi++ {
		pBin := anchor.bins[pi]
		if pBin == invalidBin || anchor.mags[pi] == negInf {
			continue
		}
		for j := t0; j >= lo; j-- {
			qMark := f.ring.at(j)
			if qMark.frame != j {
				continue
			}
			for qi := 0; qi < qMark.n; qi++ {
				qBin := qMark.bins[qi]
				if qBin == invalidBin || qMark.mags[qi] == negInf {
					continue
				}
				if qBin == pBin {
					continue
				}
				d := qBin - pBin
				if d < 0 {
					d = -d
				}
				if d >= maxDF {
					continue
				}
				out = append(out, Fingerprint{
					TimeMs: tMs,
					Hash:   PackHash(qBin, pBin, t0-j),
				})
				count++
				if count >= MaxFingerprintsPerAnchor {
					break outer
				}
			}
		}
	}
	return out
}
