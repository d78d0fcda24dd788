// Package eureka ties the decoder, fingerprinter, and matcher together
// into the end-to-end pipeline: decoder → fingerprinter(A), decoder →
// fingerprinter(B), matcher(A_fp, B_fp) → report.
package eureka

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/pkg/errors"

	config "github.com/media-luna/clipfinder/configs"
	"github.com/media-luna/clipfinder/internal/cache"
	"github.com/media-luna/clipfinder/internal/capture"
	"github.com/media-luna/clipfinder/internal/decoder"
	"github.com/media-luna/clipfinder/internal/eurekaerr"
	"github.com/media-luna/clipfinder/internal/fingerprint"
	"github.com/media-luna/clipfinder/internal/match"
	"github.com/media-luna/clipfinder/utils/logger"
)

// pushChunkBytes bounds how much decoded audio is read and pushed
// through the fingerprinter per iteration, rather than reading a whole
// file into memory at once.
const pushChunkBytes = 32 * 1024

// Eureka is the orchestrator, constructed once per run from a loaded
// Config.
type Eureka struct {
	cfg   config.Config
	store cache.Store

	// OnBytes, if set, is called after every chunk read from the
	// decoder with the number of bytes consumed so far for the file
	// currently being fingerprinted — the CLI wires this to a progress
	// bar (see cmd/eureka).
	OnBytes func(path string, cumulativeBytes int)
}

// New constructs an Eureka from a loaded configuration.
func New(cfg config.Config) *Eureka {
	return &Eureka{cfg: cfg, store: cache.NewFileStore()}
}

// Locate fingerprints queryPath and referencePath and reports where
// the query occurs inside the reference. It is the CLI's single entry
// point for the file/file case.
func (e *Eureka) Locate(ctx context.Context, queryPath, referencePath string) (match.Report, error) {
	a, err := e.fingerprintFile(ctx, queryPath)
	if err != nil {
		return match.Report{}, errors.Wrapf(err, "fingerprinting query %s", queryPath)
	}
	logger.Info("fingerprinted query clip")

	b, err := e.fingerprintFile(ctx, referencePath)
	if err != nil {
		return match.Report{}, errors.Wrapf(err, "fingerprinting reference %s", referencePath)
	}
	logger.Info("fingerprinted reference clip")

	report := match.Match(a, b, e.cfg.MatchOptions())
	if report.Confidence < e.cfg.Match.ConfidenceThreshold {
		logger.Warn("confidence below threshold")
	}
	return report, nil
}

// LocateMic records the query clip live from the default input
// device instead of reading it from a file.
func (e *Eureka) LocateMic(ctx context.Context, referencePath string, recordFor time.Duration) (match.Report, error) {
	fp := fingerprint.NewFingerprinter()
	rec, err := capture.NewRecorder(fp)
	if err != nil {
		return match.Report{}, errors.Wrap(err, "start microphone capture")
	}
	defer rec.Close()

	if err := rec.Start(); err != nil {
		return match.Report{}, errors.Wrap(err, "start recording")
	}
	logger.Info("recording query clip from microphone")

	timer := time.NewTimer(recordFor)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	a, err := rec.Stop()
	if err != nil {
		return match.Report{}, errors.Wrap(err, "stop recording")
	}

	b, err := e.fingerprintFile(ctx, referencePath)
	if err != nil {
		return match.Report{}, errors.Wrapf(err, "fingerprinting reference %s", referencePath)
	}

	report := match.Match(a, b, e.cfg.MatchOptions())
	if report.Confidence < e.cfg.Match.ConfidenceThreshold {
		logger.Warn("confidence below threshold")
	}
	return report, nil
}

// fingerprintFile loads a cached fingerprint list if one exists and is
// well-formed, otherwise decodes and fingerprints the file, writing
// the cache back on success.
func (e *Eureka) fingerprintFile(ctx context.Context, path string) ([]fingerprint.Fingerprint, error) {
	if e.cfg.Cache.Enabled {
		fps, ok, err := e.store.Load(path)
		if err == nil && ok {
			return fps, nil
		}
		if stderrors.Is(err, eurekaerr.ErrMalformedCache) {
			logger.Warn("ignoring malformed fingerprint cache, recomputing")
			_ = cache.Discard(path)
		} else if err != nil {
			return nil, err
		}
	}

	fps, err := e.decodeAndFingerprint(ctx, path)
	if err != nil {
		return nil, err
	}

	if e.cfg.Cache.Enabled {
		if err := e.store.Save(path, fps); err != nil {
			logger.Warn("failed to write fingerprint cache")
		}
	}
	return fps, nil
}

func (e *Eureka) decodeAndFingerprint(ctx context.Context, path string) ([]fingerprint.Fingerprint, error) {
	rc, err := decoder.Stream(ctx, path, decoder.Config{FFmpegPath: e.cfg.Decoder.FFmpegPath})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	fp := fingerprint.NewFingerprinter()
	var out []fingerprint.Fingerprint
	buf := make([]byte, pushChunkBytes)
	total := 0
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			out = append(out, fp.Push(buf[:n])...)
			total += n
			if e.OnBytes != nil {
				e.OnBytes(path, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read decoded audio")
		}
	}
	fp.Finish()
	return out, nil
}
