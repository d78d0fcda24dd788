// Package config loads clipfinder's YAML configuration, mirroring the
// teacher's own config.LoadConfig(path)/config.Config shape.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/media-luna/clipfinder/internal/eurekaerr"
	"github.com/media-luna/clipfinder/internal/fingerprint"
	"github.com/media-luna/clipfinder/internal/match"
)

// Config is clipfinder's top-level configuration. A missing file is
// not fatal — LoadConfig returns Defaults() — but a present, malformed
// file is an input-unavailable-class error.
type Config struct {
	Sampling struct {
		Rate int `yaml:"rate"`
	} `yaml:"sampling"`

	Fingerprint struct {
		NFFT      int     `yaml:"nfft"`
		MNLM      int     `yaml:"mnlm"`
		MPPP      int     `yaml:"mppp"`
		WindowDF  int     `yaml:"window_df"`
		WindowDT  int     `yaml:"window_dt"`
		PruningDT int     `yaml:"pruning_dt"`
		MaskDF    float64 `yaml:"mask_df"`
	} `yaml:"fingerprint"`

	Match struct {
		BinSizeMs           float64 `yaml:"bin_size_ms"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	} `yaml:"match"`

	Decoder struct {
		FFmpegPath string `yaml:"ffmpeg_path"`
	} `yaml:"decoder"`

	Cache struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"cache"`
}

// Defaults returns the built-in configuration, matching the
// fingerprinter's compiled constants and the matcher's default options
// exactly.
func Defaults() Config {
	var c Config
	c.Sampling.Rate = fingerprint.SamplingRate
	c.Fingerprint.NFFT = fingerprint.NFFT
	c.Fingerprint.MNLM = fingerprint.MaxPeaksPerFrame
	c.Fingerprint.MPPP = fingerprint.MaxFingerprintsPerAnchor
	c.Fingerprint.WindowDF = fingerprint.WindowDF
	c.Fingerprint.WindowDT = fingerprint.WindowDT
	c.Fingerprint.PruningDT = fingerprint.PruningDT
	c.Fingerprint.MaskDF = fingerprint.MaskDF
	c.Match.BinSizeMs = match.DefaultBinSizeMs
	c.Match.ConfidenceThreshold = match.DefaultConfidenceThreshold
	c.Decoder.FFmpegPath = "ffmpeg"
	c.Cache.Enabled = true
	return c
}

// LoadConfig reads YAML configuration from path. A missing file
// returns Defaults() with no error; a file that exists but fails to
// parse is wrapped in eurekaerr.ErrInputUnavailable.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(eurekaerr.ErrInputUnavailable, "read config %s: %v", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(eurekaerr.ErrInputUnavailable, "parse config %s: %v", path, err)
	}
	if err := cfg.validateFingerprintConstants(); err != nil {
		return Config{}, errors.Wrapf(eurekaerr.ErrInputUnavailable, "config %s: %v", path, err)
	}
	return cfg, nil
}

// validateFingerprintConstants rejects any sampling.rate or
// fingerprint.* override that disagrees with the compiled-in defaults.
// The fingerprinter's arrays (threshold vector, mask table, mark ring)
// are sized at compile time for one fixed sampling rate and one fixed
// set of algorithm constants, so these fields are accepted in the file
// purely for documentation and cross-checking, not applied at runtime.
func (c Config) validateFingerprintConstants() error {
	d := Defaults()
	switch {
	case c.Sampling.Rate != d.Sampling.Rate:
		return errors.Errorf("sampling.rate is compiled in at %d, not runtime-configurable", d.Sampling.Rate)
	case c.Fingerprint.NFFT != d.Fingerprint.NFFT:
		return errors.Errorf("fingerprint.nfft is compiled in at %d, not runtime-configurable", d.Fingerprint.NFFT)
	case c.Fingerprint.MNLM != d.Fingerprint.MNLM:
		return errors.Errorf("fingerprint.mnlm is compiled in at %d, not runtime-configurable", d.Fingerprint.MNLM)
	case c.Fingerprint.MPPP != d.Fingerprint.MPPP:
		return errors.Errorf("fingerprint.mppp is compiled in at %d, not runtime-configurable", d.Fingerprint.MPPP)
	case c.Fingerprint.WindowDF != d.Fingerprint.WindowDF:
		return errors.Errorf("fingerprint.window_df is compiled in at %d, not runtime-configurable", d.Fingerprint.WindowDF)
	case c.Fingerprint.WindowDT != d.Fingerprint.WindowDT:
		return errors.Errorf("fingerprint.window_dt is compiled in at %d, not runtime-configurable", d.Fingerprint.WindowDT)
	case c.Fingerprint.PruningDT != d.Fingerprint.PruningDT:
		return errors.Errorf("fingerprint.pruning_dt is compiled in at %d, not runtime-configurable", d.Fingerprint.PruningDT)
	case c.Fingerprint.MaskDF != d.Fingerprint.MaskDF:
		return errors.Errorf("fingerprint.mask_df is compiled in at %v, not runtime-configurable", d.Fingerprint.MaskDF)
	}
	return nil
}

// MatchOptions adapts Config into match.Options.
func (c Config) MatchOptions() match.Options {
	return match.Options{
		BinSizeMs:           c.Match.BinSizeMs,
		ConfidenceThreshold: c.Match.ConfidenceThreshold,
	}
}
