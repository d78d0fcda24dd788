package fingerprint

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
)

// pcmFromSamples encodes float64 samples in [-1,1] as signed 16-bit
// little-endian PCM bytes.
func pcmFromSamples(samples []float64) []byte {
	buf := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silence(n int) []float64 {
	return make([]float64, n)
}

func toneSamples(freqHz float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(SamplingRate))
	}
	return out
}

func noiseSamples(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64()*2 - 1
	}
	return out
}

// TestSilenceYieldsNoFingerprints checks that 5s of zero PCM, with
// nothing ever crossing the adaptive threshold, produces an empty
// fingerprint list.
func TestSilenceYieldsNoFingerprints(t *testing.T) {
	fp := NewFingerprinter()
	data := pcmFromSamples(silence(SamplingRate * 5))
	out := fp.Push(data)
	fp.Finish()
	if len(out) != 0 {
		t.Fatalf("expected no fingerprints from silence, got %d", len(out))
	}
}

// TestShortInputYieldsNoFingerprints checks that input shorter than
// one FFT window yields zero fingerprints, no error.
func TestShortInputYieldsNoFingerprints(t *testing.T) {
	fp := NewFingerprinter()
	data := pcmFromSamples(noiseSamples(NFFT/2, 1))
	out := fp.Push(data)
	if len(out) != 0 {
		t.Fatalf("expected no fingerprints from a too-short clip, got %d", len(out))
	}
}

// TestInvariantsOnNoise checks the fingerprinter's output invariants
// against a noisy signal, which is dense enough to exercise peak
// picking and anchor emission repeatedly: frame-aligned timestamps,
// decodable hashes within range, a per-anchor emission cap, and
// nondecreasing emission order.
func TestInvariantsOnNoise(t *testing.T) {
	fp := NewFingerprinter()
	data := pcmFromSamples(noiseSamples(SamplingRate*2, 42))
	out := fp.Push(data)
	out = append(out, fp.Finish()...)

	if len(out) == 0 {
		t.Fatal("expected some fingerprints from 2s of noise")
	}

	perAnchor := map[float64]int{}
	lastT := -1.0
	for _, f := range out {
		// invariant 1: time_ms = t*Step*1000/SamplingRate for integer t
		ratio := f.TimeMs * SamplingRate / (Step * 1000)
		if math.Abs(ratio-math.Round(ratio)) > 1e-6 {
			t.Fatalf("time_ms %v is not frame-aligned", f.TimeMs)
		}

		// invariant 2: hash decode constraints
		fPast, fAnchor, dt := UnpackHash(f.Hash)
		if f.Hash < 0 || f.Hash >= int64(Bins)*int64(Bins)*int64(WindowDT+1) {
			t.Fatalf("hash %d out of range", f.Hash)
		}
		if fAnchor == fPast {
			t.Fatalf("fAnchor == fPast for hash %d", f.Hash)
		}
		d := fAnchor - fPast
		if d < 0 {
			d = -d
		}
		if d >= effectiveWindowDF() {
			t.Fatalf("|fAnchor-fPast|=%d not < WindowDF", d)
		}
		if dt < 0 || dt > WindowDT {
			t.Fatalf("dt %d out of [0, WindowDT]", dt)
		}

		// invariant 4: nondecreasing time_ms
		if f.TimeMs < lastT {
			t.Fatalf("fingerprints not emitted in nondecreasing time_ms order: %v after %v", f.TimeMs, lastT)
		}
		lastT = f.TimeMs

		perAnchor[f.TimeMs]++
	}

	// invariant 3: no anchor frame emits more than MaxFingerprintsPerAnchor
	for tms, n := range perAnchor {
		if n > MaxFingerprintsPerAnchor {
			t.Fatalf("anchor at %v emitted %d fingerprints, want <= %d", tms, n, MaxFingerprintsPerAnchor)
		}
	}
}

// TestDeterministic checks that running the fingerprinter twice over
// identical input yields identical output.
func TestDeterministic(t *testing.T) {
	data := pcmFromSamples(noiseSamples(SamplingRate, 7))

	run := func() []Fingerprint {
		fp := NewFingerprinter()
		out := fp.Push(data)
		out = append(out, fp.Finish()...)
		return out
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fingerprint %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

// TestChunkBoundaryIndependence checks that feeding the same PCM in
// different byte-chunk sizes produces identical fingerprints.
func TestChunkBoundaryIndependence(t *testing.T) {
	data := pcmFromSamples(noiseSamples(SamplingRate, 11))

	whole := func(chunk int) []Fingerprint {
		fp := NewFingerprinter()
		var out []Fingerprint
		for i := 0; i < len(data); i += chunk {
			end := i + chunk
			if end > len(data) {
				end = len(data)
			}
			out = append(out, fp.Push(data[i:end])...)
		}
		out = append(out, fp.Finish()...)
		return out
	}

	a := whole(len(data))
	b := whole(17) // deliberately not a multiple of BytesPerSample
	c := whole(4096)

	if len(a) != len(b) || len(a) != len(c) {
		t.Fatalf("length mismatch across chunkings: %d, %d, %d", len(a), len(b), len(c))
	}
	for i := range a {
		if a[i] != b[i] || a[i] != c[i] {
			t.Fatalf("fingerprint %d differs across chunkings", i)
		}
	}
}

// TestToneSharesAnchorBin checks that a pure sinusoid produces
// fingerprints whose f_anchor bins are tightly clustered.
func TestToneSharesAnchorBin(t *testing.T) {
	fp := NewFingerprinter()
	data := pcmFromSamples(toneSamples(1000, SamplingRate*2))
	out := fp.Push(data)
	out = append(out, fp.Finish()...)

	if len(out) == 0 {
		t.Fatal("expected fingerprints from a 1kHz tone")
	}
	bins := map[int]bool{}
	for _, f := range out {
		_, fAnchor, _ := UnpackHash(f.Hash)
		bins[fAnchor] = true
	}
	if len(bins) > 3 {
		t.Fatalf("expected a pure tone to cluster into a few anchor bins, got %d distinct bins", len(bins))
	}
}

// TestBufferCompactionPreservesOutput checks that feeding >1e6 bytes
// triggers buffer compaction without altering output, by comparing
// against the same signal fed in one shot through a fresh
// fingerprinter, whose single Push processes every frame before its
// one compaction runs.
func TestBufferCompactionPreservesOutput(t *testing.T) {
	samples := noiseSamples(700_000, 99) // ~1.4MB of PCM, over the soft cap
	data := pcmFromSamples(samples)

	fpChunked := NewFingerprinter()
	var chunked []Fingerprint
	const chunk = 4096
	for i := 0; i < len(data); i += chunk {
		end := i + chunk
		if end > len(data) {
			end = len(data)
		}
		chunked = append(chunked, fpChunked.Push(data[i:end])...)
	}
	chunked = append(chunked, fpChunked.Finish()...)

	fpWhole := NewFingerprinter()
	whole := fpWhole.Push(data)
	whole = append(whole, fpWhole.Finish()...)

	if len(chunked) != len(whole) {
		t.Fatalf("compaction changed output length: %d vs %d", len(chunked), len(whole))
	}
	for i := range chunked {
		if chunked[i] != whole[i] {
			t.Fatalf("compaction changed fingerprint %d", i)
		}
	}
}

func TestPackUnpackHashRoundTrip(t *testing.T) {
	cases := []struct{ fPast, fAnchor, dt int }{
		{0, 5, 0}, {31, 0, 120}, {1, 31, 60},
	}
	for _, c := range cases {
		h := PackHash(c.fPast, c.fAnchor, c.dt)
		gotPast, gotAnchor, gotDt := UnpackHash(h)
		if gotPast != c.fPast || gotAnchor != c.fAnchor || gotDt != c.dt {
			t.Fatalf("round trip mismatch for %+v: got past=%d anchor=%d dt=%d", c, gotPast, gotAnchor, gotDt)
		}
	}
}
