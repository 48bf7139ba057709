package ffmpeg

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// runs ffprobe with the provided args and returns (stdout, stderr, error)
func Ffprobe(ctx context.Context, args ...string) ([]byte, []byte, error) {
	ffprobe := "ffprobe"
	log.Infoln(ffprobe, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, ffprobe, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err != nil {
		log.Errorf("ffprobe error: %v", err)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// Length returns the duration in seconds of the media file at path.
func Length(ctx context.Context, path string) (float64, error) {
	stdout, _, err := Ffprobe(ctx, "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	if err != nil {
		return -1, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(stdout)), 64)
}
