// Package ytdlp wraps the yt-dlp command-line program. Extraction and
// format negotiation are entirely yt-dlp's job; this package only manages
// the subprocess and interprets its exit state.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

const binary = "yt-dlp"

// cap on a single shared probe invocation, independent of any caller
const probeTimeout = 30 * time.Second

// Options bound what a single invocation is allowed to fetch.
type Options struct {
	// MaxDuration in seconds of source media; 0 means unlimited.
	MaxDuration int
	// MaxFileSize in bytes; 0 means unlimited.
	MaxFileSize int64
	// Format is the yt-dlp format selector. Empty selects a sane default.
	Format string
}

func (o Options) format() string {
	if o.Format != "" {
		return o.Format
	}
	return "best[ext=mp4]/best"
}

// common flags for every invocation
func (o Options) baseArgs() []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--no-cache-dir",
		"--socket-timeout", "30",
	}
	if o.MaxFileSize > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(o.MaxFileSize, 10))
	}
	if o.MaxDuration > 0 {
		args = append(args, "--match-filter", fmt.Sprintf("duration<%d", o.MaxDuration))
	}
	return args
}

// Info is the subset of media metadata the service needs before
// committing to a download.
type Info struct {
	Title    string
	Ext      string
	Duration float64 // seconds, 0 when unknown (live or missing)
	Filesize int64   // bytes, 0 when unknown
}

// LookPath reports whether the yt-dlp binary is available.
func LookPath() error {
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", binary, err)
	}
	return nil
}

// Version returns the installed yt-dlp version string.
func Version(ctx context.Context) (string, error) {
	stdout, _, err := run(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// runs yt-dlp with the provided args and returns (stdout, stderr, error)
func run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	log.Infoln(binary, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err != nil {
		log.Errorf("yt-dlp error: %v", err)
		log.Debugln("stderr:", stderr.String())
		err = classifyRunError(ctx, err, stderr.String())
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

var probeGroup singleflight.Group

// swapped out in tests
var runProbe = probe

// Probe fetches title, extension, duration and approximate size without
// downloading. Concurrent probes for the same URL are collapsed into one
// invocation, and transient failures are retried twice.
//
// The shared invocation runs detached from the initiating caller's
// context: other requests may be waiting on its result, so one client
// disconnecting must not fail the probe for everyone. Each caller still
// stops waiting when its own context ends.
func Probe(ctx context.Context, rawURL string, opts Options) (Info, error) {
	ch := probeGroup.DoChan(rawURL, func() (interface{}, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()
		return runProbe(pctx, rawURL, opts)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Info{}, res.Err
		}
		return res.Val.(Info), nil
	case <-ctx.Done():
		return Info{}, ctx.Err()
	}
}

func probe(ctx context.Context, rawURL string, opts Options) (Info, error) {
	args := append(opts.baseArgs(),
		"--skip-download",
		"--print", "%(title)s",
		"--print", "%(ext)s",
		"--print", "%(duration)s",
		"--print", "%(filesize,filesize_approx)s",
		rawURL,
	)

	var info Info
	operation := func() error {
		stdout, _, err := run(ctx, args...)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		parsed, err := parseProbeOutput(string(stdout))
		if err != nil {
			return backoff.Permanent(err)
		}
		info = parsed
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return Info{}, err
	}
	return info, nil
}

// only network-ish failures are worth retrying
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errorsIsAny(err, ErrUnsupportedURL, ErrUnavailable, ErrGeoRestricted,
		ErrTooLarge, ErrTooLong, ErrTimeout):
		return false
	}
	return true
}

func parseProbeOutput(output string) (Info, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 4 {
		return Info{}, fmt.Errorf("couldn't parse yt-dlp probe output: %q", truncate(output, 200))
	}
	// the print lines come last, after any extractor chatter on stdout
	lines = lines[len(lines)-4:]

	info := Info{
		Title: strings.TrimSpace(lines[0]),
		Ext:   strings.TrimSpace(lines[1]),
	}

	// yt-dlp prints "NA" for live streams and sites without the field
	if d, err := parseMaybeNA(lines[2]); err == nil {
		info.Duration = d
	}
	if s, err := parseMaybeNA(lines[3]); err == nil {
		info.Filesize = int64(s)
	}
	return info, nil
}

func parseMaybeNA(s string) (float64, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if lower == "na" || lower == "none" || s == "" {
		return 0, fmt.Errorf("field unavailable")
	}
	return strconv.ParseFloat(s, 64)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
