// Package match implements the offset-histogram matcher: a pure
// function that joins two fingerprint lists on hash equality, bins the
// resulting time offsets, and reports the dominant alignment.
package match

import (
	"math"

	"github.com/media-luna/clipfinder/internal/fingerprint"
)

// DefaultBinSizeMs and DefaultConfidenceThreshold are the matcher's
// documented defaults.
const (
	DefaultBinSizeMs           = 0.05
	DefaultConfidenceThreshold = 5
)

// Options configures a Match call.
type Options struct {
	BinSizeMs           float64
	ConfidenceThreshold float64
}

// DefaultOptions returns the matcher's documented defaults.
func DefaultOptions() Options {
	return Options{
		BinSizeMs:           DefaultBinSizeMs,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Detail is one piece of evidence behind the winning offset: the
// shared hash and each side's anchor time.
type Detail struct {
	Hash    int64
	TimeAMs float64
	TimeBMs float64
}

// Report is the matcher's output: the winning offset, its supporting
// evidence, and a confidence score.
type Report struct {
	OffsetMs   float64
	MatchCount int
	MatchRate  float64
	Confidence float64
	Matches    []Detail
}

// Match joins A against B on hash equality, quantizes the resulting
// time offsets into bins of opts.BinSizeMs, and returns the report for
// the dominant bin. A and B need not be sorted. Match never fails on
// well-formed input: an empty A yields a zero-valued report.
func Match(a, b []fingerprint.Fingerprint, opts Options) Report {
	if opts.BinSizeMs <= 0 {
		opts.BinSizeMs = DefaultBinSizeMs
	}
	if len(a) == 0 {
		return Report{}
	}

	index := indexByHash(b)

	counts := make(map[float64]int)
	var evidence []offsetEvidence

	for _, fa := range a {
		times, ok := index[fa.Hash]
		if !ok {
			continue
		}
		for _, tb := range times {
			offset := tb - fa.TimeMs
			bin := quantize(offset, opts.BinSizeMs)
			counts[bin]++
			evidence = append(evidence, offsetEvidence{
				hash:   fa.Hash,
				timeA:  fa.TimeMs,
				timeB:  tb,
				offset: offset,
			})
		}
	}

	bestBin, confidence := pickPeak(counts)

	tolerance := 2 * opts.BinSizeMs
	var matches []Detail
	for _, ev := range evidence {
		if math.Abs(ev.offset-bestBin) <= tolerance {
			matches = append(matches, Detail{
				Hash:    ev.hash,
				TimeAMs: ev.timeA,
				TimeBMs: ev.timeB,
			})
		}
	}

	return Report{
		OffsetMs:   bestBin,
		MatchCount: len(matches),
		MatchRate:  float64(len(matches)) / float64(len(a)),
		Confidence: confidence,
		Matches:    matches,
	}
}

type offsetEvidence struct {
	hash   int64
	timeA  float64
	timeB  float64
	offset float64
}

// indexByHash builds a build-once-query-many multimap hash → times,
// preserving insertion order and duplicate timestamps: multiplicity is
// meaningful, so repeated hashes at distinct times are never
// deduplicated.
func indexByHash(b []fingerprint.Fingerprint) map[int64][]float64 {
	index := make(map[int64][]float64, len(b))
	for _, fb := range b {
		index[fb.Hash] = append(index[fb.Hash], fb.TimeMs)
	}
	return index
}

// quantize rounds offset/binSize to the nearest integer using
// round-half-away-from-zero, then scales back to milliseconds, so
// quantization is deterministic and independent of iteration order.
func quantize(offsetMs, binSizeMs float64) float64 {
	ratio := offsetMs / binSizeMs
	return roundHalfAwayFromZero(ratio) * binSizeMs
}

func roundHalfAwayFromZero(x float64) float64 {
	if x >= 0 {
		return math.Floor(x + 0.5)
	}
	return math.Ceil(x - 0.5)
}

// pickPeak returns the bin with the highest count, breaking ties by
// the smallest bin value for determinism.
func pickPeak(counts map[float64]int) (bin float64, confidence float64) {
	bestCount := 0
	first := true
	for b, c := range counts {
		if first || c > bestCount || (c == bestCount && b < bin) {
			bin = b
			bestCount = c
			first = false
		}
	}
	return bin, float64(bestCount)
}
