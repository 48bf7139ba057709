package downloads

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidgrab/ytdlp"
)

func init() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	_ = Init(logger)
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(2, t.TempDir(), ytdlp.Options{MaxDuration: 3600, MaxFileSize: 1 << 30})
	m.probe = func(context.Context, string, ytdlp.Options) (ytdlp.Info, error) {
		return ytdlp.Info{Title: "A Video", Ext: "webm", Duration: 60, Filesize: 1024}, nil
	}
	m.stream = func(_ context.Context, _ string, _ ytdlp.Options, w io.Writer) (int64, error) {
		n, err := w.Write([]byte("MEDIA-BYTES"))
		return int64(n), err
	}
	m.fetch = func(context.Context, string, ytdlp.Options, string) (string, error) {
		t.Fatal("fetch should not be called")
		return "", nil
	}
	m.remux = func(context.Context, string, io.Reader, io.Writer) error {
		t.Fatal("remux should not be called")
		return nil
	}
	m.probeFile = func(context.Context, string) (float64, error) {
		return 60, nil
	}
	return m
}

func TestServeDirect(t *testing.T) {
	m := testManager(t)
	rec := httptest.NewRecorder()

	res, err := m.Serve(context.Background(), rec, Request{URL: "https://youtu.be/x", Host: "youtu.be"})
	require.NoError(t, err)

	assert.Equal(t, "direct", res.Mode)
	assert.Equal(t, int64(11), res.Bytes)
	assert.True(t, res.Committed)
	assert.Equal(t, "A Video.webm", res.Filename)
	assert.Equal(t, "MEDIA-BYTES", rec.Body.String())
	assert.Equal(t, "video/webm", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="A Video.webm"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 0, m.ActiveCount())
}

func TestServeFallbackBeforeFirstByte(t *testing.T) {
	m := testManager(t)
	m.stream = func(context.Context, string, ytdlp.Options, io.Writer) (int64, error) {
		return 0, errors.New("yt-dlp exploded")
	}

	var fetchedDir string
	m.fetch = func(_ context.Context, _ string, _ ytdlp.Options, dir string) (string, error) {
		tmp, err := os.MkdirTemp(dir, "fetch-")
		require.NoError(t, err)
		path := filepath.Join(tmp, "media.webm")
		require.NoError(t, os.WriteFile(path, []byte("FALLBACK-BYTES"), 0600))
		fetchedDir = tmp
		return path, nil
	}

	rec := httptest.NewRecorder()
	res, err := m.Serve(context.Background(), rec, Request{URL: "https://youtu.be/x", Host: "youtu.be"})
	require.NoError(t, err)

	assert.Equal(t, "fallback", res.Mode)
	assert.Equal(t, "FALLBACK-BYTES", rec.Body.String())
	assert.True(t, res.Committed)

	// temp dir is gone once the response is served
	_, statErr := os.Stat(fetchedDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestServeFallbackRejectsUnreadableFile(t *testing.T) {
	m := testManager(t)
	m.stream = func(context.Context, string, ytdlp.Options, io.Writer) (int64, error) {
		return 0, errors.New("yt-dlp exploded")
	}

	var fetchedDir string
	m.fetch = func(_ context.Context, _ string, _ ytdlp.Options, dir string) (string, error) {
		tmp, err := os.MkdirTemp(dir, "fetch-")
		require.NoError(t, err)
		path := filepath.Join(tmp, "media.webm")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
		fetchedDir = tmp
		return path, nil
	}
	m.probeFile = func(context.Context, string) (float64, error) {
		return 0, errors.New("invalid data found when processing input")
	}

	rec := httptest.NewRecorder()
	res, err := m.Serve(context.Background(), rec, Request{URL: "https://youtu.be/x", Host: "youtu.be"})

	// nothing went out, so the caller can still send a proper error
	require.Error(t, err)
	assert.False(t, res.Committed)
	assert.Empty(t, rec.Body.String())

	_, statErr := os.Stat(fetchedDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestServePhaseCallback(t *testing.T) {
	m := testManager(t)

	var phases []Phase
	req := Request{
		URL:     "https://youtu.be/x",
		Host:    "youtu.be",
		OnPhase: func(p Phase) { phases = append(phases, p) },
	}

	rec := httptest.NewRecorder()
	_, err := m.Serve(context.Background(), rec, req)
	require.NoError(t, err)
	assert.Equal(t, []Phase{PhaseStreaming}, phases)

	// a fallback run reports both transitions
	m.stream = func(context.Context, string, ytdlp.Options, io.Writer) (int64, error) {
		return 0, errors.New("yt-dlp exploded")
	}
	m.fetch = func(_ context.Context, _ string, _ ytdlp.Options, dir string) (string, error) {
		tmp, err := os.MkdirTemp(dir, "fetch-")
		require.NoError(t, err)
		path := filepath.Join(tmp, "media.webm")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
		return path, nil
	}

	phases = nil
	rec = httptest.NewRecorder()
	_, err = m.Serve(context.Background(), rec, req)
	require.NoError(t, err)
	assert.Equal(t, []Phase{PhaseStreaming, PhaseFallback}, phases)
}

func TestServeNoFallbackMidStream(t *testing.T) {
	m := testManager(t)
	m.stream = func(_ context.Context, _ string, _ ytdlp.Options, w io.Writer) (int64, error) {
		n, _ := w.Write([]byte("PARTIAL"))
		return int64(n), errors.New("connection to extractor lost")
	}

	rec := httptest.NewRecorder()
	res, err := m.Serve(context.Background(), rec, Request{URL: "https://youtu.be/x", Host: "youtu.be"})

	require.Error(t, err)
	assert.Equal(t, "direct", res.Mode)
	assert.Equal(t, int64(7), res.Bytes)
	assert.True(t, res.Committed)
}

func TestServeAbort(t *testing.T) {
	m := testManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	m.stream = func(ctx context.Context, _ string, _ ytdlp.Options, w io.Writer) (int64, error) {
		cancel()
		return 0, ctx.Err()
	}

	rec := httptest.NewRecorder()
	_, err := m.Serve(ctx, rec, Request{URL: "https://youtu.be/x", Host: "youtu.be"})
	assert.ErrorIs(t, err, ErrAborted)
}

func TestServeRejectsTooLong(t *testing.T) {
	m := testManager(t)
	m.probe = func(context.Context, string, ytdlp.Options) (ytdlp.Info, error) {
		return ytdlp.Info{Title: "Marathon", Ext: "mp4", Duration: 100000}, nil
	}
	m.stream = func(context.Context, string, ytdlp.Options, io.Writer) (int64, error) {
		t.Fatal("stream should not be called")
		return 0, nil
	}

	rec := httptest.NewRecorder()
	res, err := m.Serve(context.Background(), rec, Request{URL: "https://youtu.be/x", Host: "youtu.be"})
	assert.ErrorIs(t, err, ytdlp.ErrTooLong)
	assert.False(t, res.Committed)
}

func TestServeRejectsTooLarge(t *testing.T) {
	m := testManager(t)
	m.probe = func(context.Context, string, ytdlp.Options) (ytdlp.Info, error) {
		return ytdlp.Info{Title: "Huge", Ext: "mp4", Duration: 60, Filesize: 10 << 30}, nil
	}

	rec := httptest.NewRecorder()
	_, err := m.Serve(context.Background(), rec, Request{URL: "https://youtu.be/x", Host: "youtu.be"})
	assert.ErrorIs(t, err, ytdlp.ErrTooLarge)
}

func TestServeConcurrencyCap(t *testing.T) {
	m := testManager(t)
	m.maxConcurrent = 1

	blocker, err := m.register(Request{URL: "https://youtu.be/a", Host: "youtu.be"})
	require.NoError(t, err)
	defer m.unregister(blocker)

	rec := httptest.NewRecorder()
	_, err = m.Serve(context.Background(), rec, Request{URL: "https://youtu.be/b", Host: "youtu.be"})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestServeRemuxChain(t *testing.T) {
	m := testManager(t)
	m.stream = func(_ context.Context, _ string, _ ytdlp.Options, w io.Writer) (int64, error) {
		n, err := w.Write([]byte("raw"))
		return int64(n), err
	}
	m.remux = func(_ context.Context, container string, r io.Reader, w io.Writer) error {
		assert.Equal(t, "mp4", container)
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		_, err = w.Write(append([]byte("muxed:"), data...))
		return err
	}

	rec := httptest.NewRecorder()
	res, err := m.Serve(context.Background(), rec, Request{URL: "https://youtu.be/x", Host: "youtu.be", Remux: true})
	require.NoError(t, err)

	assert.Equal(t, "muxed:raw", rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "A Video.mp4", res.Filename)
}

func TestHeaderWriterDefersCommit(t *testing.T) {
	rec := httptest.NewRecorder()
	prepared := false
	hw := newHeaderWriter(rec, func(h http.Header) {
		prepared = true
	}, nil)

	assert.False(t, hw.Committed())
	assert.False(t, prepared)

	_, err := hw.Write([]byte("x"))
	require.NoError(t, err)
	assert.True(t, hw.Committed())
	assert.True(t, prepared)
	assert.Equal(t, int64(1), hw.Written())
}
