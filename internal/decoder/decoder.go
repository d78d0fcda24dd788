// Package decoder turns an audio file on disk into the mono 16-bit
// little-endian PCM byte stream the fingerprinter consumes. Decoding
// is treated as an external collaborator: it is not part of the
// fingerprinter's core, but the boundary still has to live somewhere,
// so it lives here.
//
// Two paths are wired:
//
//   - a native path using faiface/beep's wav/mp3/flac decoders plus
//     beep.Resample, for the formats beep understands, with no
//     external process at all;
//   - an ffmpeg child-process fallback for everything else.
package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"

	"github.com/media-luna/clipfinder/internal/eurekaerr"
	"github.com/media-luna/clipfinder/internal/fingerprint"
)

// Config controls how a file is decoded.
type Config struct {
	// FFmpegPath is the ffmpeg binary used as a fallback for formats
	// beep does not decode natively. Empty disables the fallback.
	FFmpegPath string
}

// Stream opens path and returns an io.ReadCloser of raw mono 16-bit
// little-endian PCM at fingerprint.SamplingRate, ready to be fed in
// chunks to a fingerprint.Fingerprinter's Push.
func Stream(ctx context.Context, path string, cfg Config) (io.ReadCloser, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(eurekaerr.ErrInputUnavailable, "audio file %s: %v", path, err)
	}

	if rc, err := streamNative(path); err == nil {
		return rc, nil
	}

	if cfg.FFmpegPath == "" {
		return nil, errors.Wrapf(eurekaerr.ErrInputUnavailable,
			"no native decoder for %s and no ffmpeg configured", path)
	}
	return streamFFmpeg(ctx, path, cfg.FFmpegPath)
}

// streamNative decodes path with faiface/beep, resampling and
// downmixing to mono fingerprint.SamplingRate, without invoking any
// external process.
func streamNative(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(eurekaerr.ErrInputUnavailable, "open %s: %v", path, err)
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		stream, format, err = wav.Decode(f)
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	case ".flac":
		stream, format, err = flac.Decode(f)
	default:
		f.Close()
		return nil, errors.New("no native decoder for this extension")
	}
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(eurekaerr.ErrDecoderFailure, "decode %s: %v", path, err)
	}

	resampled := beep.Resample(4, format.SampleRate, beep.SampleRate(fingerprint.SamplingRate), stream)
	return &pcmReader{streamer: resampled, closer: stream}, nil
}

// pcmReader adapts a beep.Streamer of resampled stereo samples into an
// io.Reader of raw mono 16-bit little-endian PCM, averaging the two
// channels of each sample as it reads.
type pcmReader struct {
	streamer beep.Streamer
	closer   io.Closer
	pending  bytes.Buffer
	done     bool
}

var samplesBufSize = 512

func (r *pcmReader) Read(p []byte) (int, error) {
	for r.pending.Len() < len(p) && !r.done {
		buf := make([][2]float64, samplesBufSize)
		n, ok := r.streamer.Stream(buf)
		for i := 0; i < n; i++ {
			mono := (buf[i][0] + buf[i][1]) / 2
			s := int16(clampSample(mono) * 32767)
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(s))
			r.pending.Write(b[:])
		}
		if !ok {
			r.done = true
		}
	}
	if r.pending.Len() == 0 && r.done {
		return 0, io.EOF
	}
	return r.pending.Read(p)
}

func (r *pcmReader) Close() error {
	return r.closer.Close()
}

func clampSample(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// streamFFmpeg shells out to ffmpeg to decode path into raw PCM: mono,
// fingerprint.SamplingRate, signed 16-bit little-endian, headerless.
// The decoder surfaces a nonzero exit or stderr output promptly, with
// no retries.
func streamFFmpeg(ctx context.Context, path, ffmpegPath string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-v", "error",
		"-i", path,
		"-ar", strconv.Itoa(fingerprint.SamplingRate),
		"-ac", "1",
		"-f", "s16le",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(eurekaerr.ErrDecoderFailure, "ffmpeg stdout pipe: %v", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(eurekaerr.ErrInputUnavailable, "start ffmpeg: %v", err)
	}

	return &ffmpegStream{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
}

// ffmpegStream wraps the ffmpeg child process, surfacing a
// DecoderFailure if it exits nonzero or wrote to stderr once the
// stream is exhausted or closed.
type ffmpegStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == io.EOF {
		if waitErr := s.cmd.Wait(); waitErr != nil || s.stderr.Len() > 0 {
			return n, errors.Wrapf(eurekaerr.ErrDecoderFailure, "ffmpeg: %v: %s", waitErr, s.stderr.String())
		}
	}
	return n, err
}

func (s *ffmpegStream) Close() error {
	s.stdout.Close()
	if s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	return nil
}

// ReadWavInfo inspects the RIFF/WAVE header of path, if present, to
// report its declared sample rate and channel count so the caller can
// reject mismatched input before it is silently mis-decoded. Files
// with no recognizable header (e.g. headerless PCM, or a header
// shorter than the standard 44 bytes) are reported with IsWav=false
// and no error.
func ReadWavInfo(path string) (WavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WavInfo{}, errors.Wrapf(eurekaerr.ErrInputUnavailable, "open %s: %v", path, err)
	}
	defer f.Close()

	var header [44]byte
	n, err := io.ReadFull(f, header[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return WavInfo{}, errors.Wrapf(eurekaerr.ErrInputUnavailable, "read %s: %v", path, err)
	}
	if n < 44 || string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WavInfo{}, nil
	}

	return WavInfo{
		IsWav:         true,
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
	}, nil
}

// WavInfo is the subset of a RIFF/WAVE header the caller needs to
// validate input before decoding.
type WavInfo struct {
	IsWav         bool
	SampleRate    int
	Channels      int
	BitsPerSample int
}
