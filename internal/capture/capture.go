// Package capture records live audio from the default input device
// and feeds it straight into a fingerprint.Fingerprinter, supplying
// the query clip A without requiring a file on disk. Captured audio
// streams directly into the Fingerprinter's Push as it arrives, rather
// than accumulating a buffer for ad hoc reprocessing.
package capture

import (
	"encoding/binary"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"

	"github.com/media-luna/clipfinder/internal/eurekaerr"
	"github.com/media-luna/clipfinder/internal/fingerprint"
)

const framesPerBuffer = 1024

// Recorder streams microphone audio into a Fingerprinter while
// recording.
type Recorder struct {
	stream *portaudio.Stream
	fp     *fingerprint.Fingerprinter

	mu           sync.Mutex
	fingerprints []fingerprint.Fingerprint
}

// NewRecorder opens the default input device at fingerprint.SamplingRate,
// mono, feeding captured audio to fp as it arrives.
func NewRecorder(fp *fingerprint.Fingerprinter) (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Wrapf(eurekaerr.ErrInputUnavailable, "initialize portaudio: %v", err)
	}

	r := &Recorder{fp: fp}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, errors.Wrapf(eurekaerr.ErrInputUnavailable, "default input device: %v", err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(fingerprint.SamplingRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, r.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, errors.Wrapf(eurekaerr.ErrInputUnavailable, "open audio stream: %v", err)
	}
	r.stream = stream
	return r, nil
}

// Start begins recording.
func (r *Recorder) Start() error {
	return r.stream.Start()
}

// Stop stops recording and runs Finish on the underlying fingerprinter.
func (r *Recorder) Stop() ([]fingerprint.Fingerprint, error) {
	if err := r.stream.Stop(); err != nil {
		return nil, errors.Wrap(err, "stop audio stream")
	}
	r.fp.Finish()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fingerprints, nil
}

// Close releases PortAudio resources.
func (r *Recorder) Close() error {
	if err := r.stream.Close(); err != nil {
		return errors.Wrap(err, "close audio stream")
	}
	return portaudio.Terminate()
}

// callback converts a float32 capture buffer to raw mono 16-bit
// little-endian PCM and pushes it straight through the fingerprinter.
func (r *Recorder) callback(in []float32) {
	buf := make([]byte, 0, len(in)*fingerprint.BytesPerSample)
	var b [2]byte
	for _, sample := range in {
		s := int16(clamp(float64(sample)) * 32767)
		binary.LittleEndian.PutUint16(b[:], uint16(s))
		buf = append(buf, b[:]...)
	}

	fps := r.fp.Push(buf)
	if len(fps) == 0 {
		return
	}
	r.mu.Lock()
	r.fingerprints = append(r.fingerprints, fps...)
	r.mu.Unlock()
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
