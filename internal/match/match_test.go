package match

import (
	"math/rand"
	"testing"

	"github.com/media-luna/clipfinder/internal/fingerprint"
)

func randomFingerprints(n int, seed int64) []fingerprint.Fingerprint {
	r := rand.New(rand.NewSource(seed))
	out := make([]fingerprint.Fingerprint, n)
	for i := range out {
		out[i] = fingerprint.Fingerprint{
			TimeMs: float64(i) * 32000.0 / 44100.0,
			Hash:   r.Int63n(1 << 20),
		}
	}
	return out
}

// TestSelfMatchIsZeroOffset checks that matching a fingerprint list
// against itself yields offset_ms=0 and confidence=|fp|.
func TestSelfMatchIsZeroOffset(t *testing.T) {
	fps := randomFingerprints(200, 1)
	rep := Match(fps, fps, DefaultOptions())

	if rep.OffsetMs != 0 {
		t.Fatalf("expected offset 0, got %v", rep.OffsetMs)
	}
	if rep.Confidence != float64(len(fps)) {
		t.Fatalf("expected confidence %d, got %v", len(fps), rep.Confidence)
	}
	if rep.MatchCount != len(fps) {
		t.Fatalf("expected match count %d, got %d", len(fps), rep.MatchCount)
	}
	if rep.MatchRate != 1.0 {
		t.Fatalf("expected match rate 1.0, got %v", rep.MatchRate)
	}
}

// TestEmptyAYieldsZeroReport checks that an empty A never fails the
// matcher — it returns a zero-valued report instead.
func TestEmptyAYieldsZeroReport(t *testing.T) {
	b := randomFingerprints(50, 2)
	rep := Match(nil, b, DefaultOptions())

	if rep.MatchCount != 0 || rep.MatchRate != 0 || rep.Confidence != 0 || rep.OffsetMs != 0 {
		t.Fatalf("expected zero-valued report for empty A, got %+v", rep)
	}
	if len(rep.Matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(rep.Matches))
	}
}

// TestOffsetShift checks that when B is A shifted by a known amount,
// the matcher recovers that offset with high confidence.
func TestOffsetShift(t *testing.T) {
	a := randomFingerprints(300, 3)

	const shiftMs = 1000.0
	b := make([]fingerprint.Fingerprint, len(a))
	for i, f := range a {
		b[i] = fingerprint.Fingerprint{TimeMs: f.TimeMs + shiftMs, Hash: f.Hash}
	}

	rep := Match(a, b, DefaultOptions())

	if rep.OffsetMs < shiftMs-DefaultBinSizeMs || rep.OffsetMs > shiftMs+DefaultBinSizeMs {
		t.Fatalf("expected offset near %v, got %v", shiftMs, rep.OffsetMs)
	}
	if rep.Confidence < 0.5*float64(len(a)) {
		t.Fatalf("expected confidence >= %v, got %v", 0.5*float64(len(a)), rep.Confidence)
	}
}

// TestNoMatchLowConfidence checks that unrelated fingerprint lists
// produce low confidence and a low match rate.
func TestNoMatchLowConfidence(t *testing.T) {
	a := randomFingerprints(300, 4)
	b := randomFingerprints(300, 5)

	rep := Match(a, b, DefaultOptions())

	if rep.Confidence >= DefaultConfidenceThreshold {
		t.Fatalf("expected low confidence for unrelated inputs, got %v", rep.Confidence)
	}
	if rep.MatchRate >= 0.05 {
		t.Fatalf("expected match rate < 0.05 for unrelated inputs, got %v", rep.MatchRate)
	}
}

// TestDuplicateHashesNotDeduplicated checks that duplicate hashes at
// distinct times in B are all retained, not deduplicated.
func TestDuplicateHashesNotDeduplicated(t *testing.T) {
	a := []fingerprint.Fingerprint{{TimeMs: 0, Hash: 42}}
	b := []fingerprint.Fingerprint{
		{TimeMs: 100, Hash: 42},
		{TimeMs: 200, Hash: 42},
	}

	rep := Match(a, b, Options{BinSizeMs: 1, ConfidenceThreshold: 5})

	total := 0
	for _, n := range countsByOffset(a, b, 1) {
		total += n
	}
	if total != 2 {
		t.Fatalf("expected both duplicate hashes to contribute, total counted %d", total)
	}
	if rep.Confidence != 1 {
		t.Fatalf("expected confidence 1 (each offset bin gets exactly one vote), got %v", rep.Confidence)
	}
}

// countsByOffset is a small test helper mirroring Match's join step,
// used only to cross-check duplicate-hash accounting above.
func countsByOffset(a, b []fingerprint.Fingerprint, binSizeMs float64) map[int]int {
	index := indexByHash(b)
	counts := map[int]int{}
	for _, fa := range a {
		for _, tb := range index[fa.Hash] {
			offset := tb - fa.TimeMs
			bin := int(quantize(offset, binSizeMs))
			counts[bin]++
		}
	}
	return counts
}

// TestDeterministicTieBreak checks that ties break on the smallest
// bin value, deterministically regardless of map iteration order.
func TestDeterministicTieBreak(t *testing.T) {
	counts := map[float64]int{
		5.0:  3,
		-2.0: 3,
		10.0: 3,
	}
	bin, confidence := pickPeak(counts)
	if bin != -2.0 {
		t.Fatalf("expected smallest bin -2.0 to win tie, got %v", bin)
	}
	if confidence != 3 {
		t.Fatalf("expected confidence 3, got %v", confidence)
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.5, 1}, {-0.5, -1}, {1.5, 2}, {-1.5, -2}, {0.4, 0}, {-0.4, 0},
	}
	for _, c := range cases {
		got := roundHalfAwayFromZero(c.in)
		if got != c.want {
			t.Fatalf("roundHalfAwayFromZero(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
