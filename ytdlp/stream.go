package ytdlp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Stream runs yt-dlp with output on stdout and copies it to w. It returns
// the number of bytes written. Cancelling ctx kills the subprocess; a
// non-zero exit is classified into the package's sentinel errors.
func Stream(ctx context.Context, rawURL string, opts Options, w io.Writer) (int64, error) {
	args := append(opts.baseArgs(),
		"-f", opts.format(),
		"-o", "-",
		rawURL,
	)

	log.Infoln(binary, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.WaitDelay = 5 * time.Second

	stderr := newTailBuffer(8 * 1024)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("yt-dlp stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("yt-dlp start: %w", err)
	}

	written, copyErr := io.Copy(w, stdout)
	waitErr := cmd.Wait()

	if waitErr != nil {
		return written, classifyRunError(ctx, waitErr, stderr.String())
	}
	if copyErr != nil {
		// subprocess was fine, the writer (client connection) was not
		return written, fmt.Errorf("copy to client: %w", copyErr)
	}
	return written, nil
}

// Download fetches the media into a fresh directory under dir and returns
// the path of the single resulting file. The caller removes the file's
// parent directory when done with it.
func Download(ctx context.Context, rawURL string, opts Options, dir string) (string, error) {
	tmpDir, err := os.MkdirTemp(dir, "fetch-")
	if err != nil {
		return "", fmt.Errorf("mktemp: %w", err)
	}

	// a generic name so we don't have to guess the title
	outTpl := filepath.Join(tmpDir, "media.%(ext)s")
	args := append(opts.baseArgs(),
		"-f", opts.format(),
		"-o", outTpl,
		"--retries", "3",
		rawURL,
	)

	if _, _, err := run(ctx, args...); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", err
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", fmt.Errorf("read temp dir: %w", err)
	}
	if len(entries) != 1 || entries[0].IsDir() {
		_ = os.RemoveAll(tmpDir)
		return "", fmt.Errorf("expected one file in %s, found %d entries", tmpDir, len(entries))
	}

	return filepath.Join(tmpDir, entries[0].Name()), nil
}
