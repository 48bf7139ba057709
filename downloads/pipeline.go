package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"vidgrab/metrics"
	"vidgrab/sanitize"
	"vidgrab/ytdlp"
)

// Request describes one validated download request. Host must already
// have passed the allow-list.
type Request struct {
	URL      string
	Host     string
	Remux    bool // force an mp4 container via ffmpeg
	ClientIP string

	// OnPhase, when set, observes pipeline phase transitions after the
	// initial probe. Called synchronously; keep it cheap.
	OnPhase func(Phase)
}

// Result reports what the pipeline did, whether it succeeded or not.
type Result struct {
	Info      ytdlp.Info
	Filename  string
	Mode      string // "direct" or "fallback", "" when no tier started
	Bytes     int64
	Committed bool // response headers were sent
}

// Serve runs the two-tier pipeline and writes media to rw.
//
// Tier 1 pipes yt-dlp stdout straight to the response; headers are held
// back until the first byte, so a failure before any output falls
// through to tier 2, which downloads to a temp file and serves that.
// A failure after bytes went out is unrecoverable and is returned as-is;
// the caller must not write an error body over a committed response.
func (m *Manager) Serve(ctx context.Context, rw http.ResponseWriter, req Request) (Result, error) {
	a, err := m.register(req)
	if err != nil {
		metrics.RejectedTotal.WithLabelValues("busy").Inc()
		return Result{}, err
	}
	defer m.unregister(a)

	var res Result

	info, err := m.probe(ctx, req.URL, m.opts)
	if err != nil {
		return res, err
	}
	res.Info = info

	// cheap pre-checks before spawning the real download; yt-dlp enforces
	// the same limits again during the transfer
	if m.opts.MaxDuration > 0 && info.Duration > float64(m.opts.MaxDuration) {
		return res, ytdlp.ErrTooLong
	}
	if m.opts.MaxFileSize > 0 && info.Filesize > m.opts.MaxFileSize {
		return res, ytdlp.ErrTooLarge
	}

	ext := info.Ext
	if req.Remux {
		ext = "mp4"
	}
	res.Filename = sanitize.Filename(info.Title, ext)

	hw := newHeaderWriter(rw, func(h http.Header) {
		h.Set("Content-Type", contentTypeForExt(ext))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
		h.Set("Cache-Control", "no-cache")
	}, func(n int64) {
		a.addBytes(n)
		metrics.StreamedBytes.Add(float64(n))
	})

	setPhase := func(p Phase) {
		a.setPhase(p)
		if req.OnPhase != nil {
			req.OnPhase(p)
		}
	}

	setPhase(PhaseStreaming)
	res.Mode = "direct"
	err = m.streamDirect(ctx, req, hw)
	res.Bytes = hw.Written()
	res.Committed = hw.Committed()

	if err == nil {
		return res, nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return res, ErrAborted
	}
	if hw.Written() > 0 {
		// output already reached the client, nothing left to fall back to
		return res, fmt.Errorf("direct stream failed mid-response: %w", err)
	}

	log.Warnf("direct stream of %s failed before output (%v), falling back to temp file", req.URL, err)

	setPhase(PhaseFallback)
	res.Mode = "fallback"
	err = m.serveFromTempFile(ctx, req, hw)
	res.Bytes = hw.Written()
	res.Committed = hw.Committed()
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return res, ErrAborted
	}
	return res, err
}

// tier 1: subprocess stdout straight to the client, with an optional
// ffmpeg remux stage in between
func (m *Manager) streamDirect(ctx context.Context, req Request, w io.Writer) error {
	if !req.Remux {
		_, err := m.stream(ctx, req.URL, m.opts, w)
		return err
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := m.stream(gctx, req.URL, m.opts, pw)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		defer pr.Close()
		return m.remux(gctx, "mp4", pr, w)
	})
	return g.Wait()
}

// tier 2: fetch to a temp file, then serve the file
func (m *Manager) serveFromTempFile(ctx context.Context, req Request, w io.Writer) error {
	path, err := m.fetch(ctx, req.URL, m.opts, m.tempDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(filepath.Dir(path)); err != nil {
			log.Errorf("couldn't remove temp dir for %s: %v", path, err)
		}
	}()

	// run the fetched file past ffprobe before any byte goes out; a
	// truncated or empty fetch should surface as an error response, not
	// as a corrupt download
	length, err := m.probeFile(ctx, path)
	if err != nil {
		return fmt.Errorf("fetched file failed verification: %w", err)
	}
	log.Debugf("fetched file for %s verified, %.1fs", req.URL, length)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open fetched file: %w", err)
	}
	defer f.Close()

	if req.Remux {
		return m.remux(ctx, "mp4", f, w)
	}
	_, err = io.Copy(w, f)
	return err
}

func contentTypeForExt(ext string) string {
	switch ext {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "mov":
		return "video/quicktime"
	case "m4a":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "opus", "ogg":
		return "audio/ogg"
	}
	return "application/octet-stream"
}
