// Command eureka locates where a short query audio clip occurs inside
// a longer reference clip, via landmark fingerprinting and offset
// histogram matching. It uses a plain stdlib flag-based CLI, no
// subcommand framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	config "github.com/media-luna/clipfinder/configs"
	"github.com/media-luna/clipfinder/internal/eureka"
	"github.com/media-luna/clipfinder/internal/match"
	"github.com/media-luna/clipfinder/utils/logger"
)

func main() {
	queryPath := flag.String("query", "", "Path to the short query audio clip")
	referencePath := flag.String("reference", "", "Path to the longer reference audio clip")
	configPath := flag.String("config", "configs/config.yaml", "Path to a YAML configuration file")
	mic := flag.Bool("mic", false, "Record the query clip live from the default microphone instead of -query")
	micSeconds := flag.Int("mic-seconds", 5, "How long to record when -mic is set")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error(errors.Wrap(err, "load configuration"))
		os.Exit(1)
	}

	if !*mic && *queryPath == "" {
		logger.Error(fmt.Errorf("provide -query <path> or -mic"))
		flag.Usage()
		os.Exit(1)
	}
	if *referencePath == "" {
		logger.Error(fmt.Errorf("provide -reference <path>"))
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		cancel()
	}()

	app := eureka.New(cfg)
	app.OnBytes = progressReporter()

	var rep match.Report
	if *mic {
		rep, err = app.LocateMic(ctx, *referencePath, time.Duration(*micSeconds)*time.Second)
	} else {
		rep, err = app.Locate(ctx, *queryPath, *referencePath)
	}
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}

	printReport(rep, cfg.Match.ConfidenceThreshold)
}

// progressReporter renders fingerprinting progress with
// schollz/progressbar while streaming a file through the
// fingerprinter, gated on whether stdout is a terminal so piped
// output stays clean.
func progressReporter() func(path string, cumulativeBytes int) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	bars := map[string]*progressbar.ProgressBar{}
	return func(path string, cumulativeBytes int) {
		bar, ok := bars[path]
		if !ok {
			bar = progressbar.DefaultBytes(-1, fmt.Sprintf("fingerprinting %s", path))
			bars[path] = bar
		}
		_ = bar.Set(cumulativeBytes)
	}
}

// printReport prints the CLI summary: offset as H:MM:SS.mmm, match
// count, match rate, confidence, and a warning when confidence is
// below threshold.
func printReport(rep match.Report, confidenceThreshold float64) {
	fmt.Printf("offset:      %s\n", formatOffset(rep.OffsetMs))
	fmt.Printf("matches:     %d\n", rep.MatchCount)
	fmt.Printf("match rate:  %.4f\n", rep.MatchRate)
	fmt.Printf("confidence:  %.1f\n", rep.Confidence)
	if rep.Confidence < confidenceThreshold {
		logger.Warn(fmt.Sprintf("confidence %.1f is below threshold %.1f", rep.Confidence, confidenceThreshold))
	}
}

// formatOffset renders an offset in milliseconds as H:MM:SS.mmm.
func formatOffset(offsetMs float64) string {
	sign := ""
	if offsetMs < 0 {
		sign = "-"
		offsetMs = -offsetMs
	}
	totalMs := int64(offsetMs + 0.5)
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	s := totalSec % 60
	totalMin := totalSec / 60
	m := totalMin % 60
	h := totalMin / 60
	return fmt.Sprintf("%s%d:%02d:%02d.%03d", sign, h, m, s, ms)
}
