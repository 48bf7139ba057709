// Package ffmpeg wraps the ffmpeg/ffprobe command-line programs for
// container remuxing and media probing. No codec work happens here.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// LookPath reports whether the ffmpeg binary is available.
func LookPath() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return nil
}

// Version returns the first line of `ffmpeg -version`.
func Version(ctx context.Context) (string, error) {
	stdout, _, err := run(ctx, "-version")
	if err != nil {
		return "", err
	}
	lines := strings.SplitN(string(stdout), "\n", 2)
	return strings.TrimSpace(lines[0]), nil
}

// runs ffmpeg with the provided args and returns (stdout, stderr, error)
func run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	ffmpeg := "ffmpeg"
	log.Infoln(ffmpeg, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err != nil {
		log.Errorf("ffmpeg error: %v", err)
		log.Debugln("stderr:", stderr.String())
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// Remux copies streams from r into a different container written to w,
// without re-encoding. Fragmented mp4 is used so the output stays
// seekless-writable (mp4 normally wants to seek back for the moov atom).
func Remux(ctx context.Context, container string, r io.Reader, w io.Writer) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-c", "copy",
	}
	if container == "mp4" {
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	}
	args = append(args, "-f", container, "pipe:1")

	log.Infoln("ffmpeg", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.WaitDelay = 5 * time.Second
	cmd.Stdin = r
	cmd.Stdout = w

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("ffmpeg remux: %s", msg)
	}
	return nil
}
