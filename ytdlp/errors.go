package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the yt-dlp failure modes the service reports
// distinctly. Anything else surfaces as a generic wrapped error.
var (
	ErrUnsupportedURL    = errors.New("no extractor supports this URL")
	ErrUnavailable       = errors.New("video is unavailable or private")
	ErrGeoRestricted     = errors.New("video is not available from this location")
	ErrTooLarge          = errors.New("video exceeds the maximum file size")
	ErrTooLong           = errors.New("video exceeds the maximum duration")
	ErrUpstreamThrottled = errors.New("source site is throttling requests")
	ErrTimeout           = errors.New("operation timed out")
)

// ClassifyOutput maps yt-dlp output to one of the sentinel errors, or nil
// when nothing recognizable is found. Matching is substring-based; yt-dlp
// has no machine-readable error channel.
func ClassifyOutput(output string) error {
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "unsupported url"):
		return ErrUnsupportedURL
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "this video has been removed"),
		strings.Contains(lower, "account associated with this video has been terminated"):
		return ErrUnavailable
	// youtube phrases this both as "not available in your country" and
	// "the uploader has not made this video available in your country"
	case strings.Contains(lower, "available in your country"),
		strings.Contains(lower, "geo restricted"),
		strings.Contains(lower, "geo-restricted"):
		return ErrGeoRestricted
	case strings.Contains(lower, "exceeds maximum file size"),
		strings.Contains(lower, "--max-filesize"),
		strings.Contains(lower, "file is larger than max-filesize"):
		return ErrTooLarge
	case strings.Contains(lower, "duration<") && strings.Contains(lower, "skipping"):
		return ErrTooLong
	case strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "http error 429"):
		return ErrUpstreamThrottled
	}
	return nil
}

// classifyRunError turns a failed command run into the most specific error
// available: context timeout first, then recognizable stderr text, then a
// generic error carrying the tail of the output.
func classifyRunError(ctx context.Context, runErr error, output string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, runErr)
	}
	if err := ClassifyOutput(output); err != nil {
		return err
	}
	return fmt.Errorf("yt-dlp failed: %v: %s", runErr, truncate(strings.TrimSpace(output), 300))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// tailBuffer keeps the last max bytes written to it. yt-dlp prints the
// interesting error last, after a wall of progress output.
type tailBuffer struct {
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
