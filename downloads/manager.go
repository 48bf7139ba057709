// Package downloads runs the request-to-stream pipeline: probe the URL,
// try direct stdout streaming, fall back to a temp file when the direct
// attempt dies before producing output.
package downloads

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidgrab/ffmpeg"
	"vidgrab/metrics"
	"vidgrab/ytdlp"
)

var (
	// ErrBusy means the concurrent download cap is reached.
	ErrBusy = errors.New("too many concurrent downloads")
	// ErrAborted means the client went away mid-request.
	ErrAborted = errors.New("client aborted the request")
)

type Phase string

const (
	PhaseProbing   Phase = "probing"
	PhaseStreaming Phase = "streaming"
	PhaseFallback  Phase = "fallback"
)

type active struct {
	id       string
	url      string
	host     string
	clientIP string
	started  time.Time

	mu    sync.Mutex
	phase Phase
	bytes int64
}

func (a *active) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
}

func (a *active) addBytes(n int64) {
	a.mu.Lock()
	a.bytes += n
	a.mu.Unlock()
}

// Snapshot is a point-in-time view of one in-flight download.
type Snapshot struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Host     string    `json:"host"`
	ClientIP string    `json:"client_ip"`
	Phase    Phase     `json:"phase"`
	Bytes    int64     `json:"bytes"`
	Started  time.Time `json:"started"`
}

// Manager tracks in-flight downloads and enforces the concurrency cap.
// The subprocess entry points are fields so tests can substitute fakes.
type Manager struct {
	maxConcurrent int
	tempDir       string
	opts          ytdlp.Options

	probe     func(ctx context.Context, url string, opts ytdlp.Options) (ytdlp.Info, error)
	stream    func(ctx context.Context, url string, opts ytdlp.Options, w io.Writer) (int64, error)
	fetch     func(ctx context.Context, url string, opts ytdlp.Options, dir string) (string, error)
	remux     func(ctx context.Context, container string, r io.Reader, w io.Writer) error
	probeFile func(ctx context.Context, path string) (float64, error)

	mu     sync.Mutex
	active map[string]*active
}

func NewManager(maxConcurrent int, tempDir string, opts ytdlp.Options) *Manager {
	return &Manager{
		maxConcurrent: maxConcurrent,
		tempDir:       tempDir,
		opts:          opts,
		probe:         ytdlp.Probe,
		stream:        ytdlp.Stream,
		fetch:         ytdlp.Download,
		remux:         ffmpeg.Remux,
		probeFile:     ffmpeg.Length,
		active:        make(map[string]*active),
	}
}

func (m *Manager) register(req Request) (*active, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) >= m.maxConcurrent {
		return nil, ErrBusy
	}
	a := &active{
		id:       uuid.Must(uuid.NewV7()).String(),
		url:      req.URL,
		host:     req.Host,
		clientIP: req.ClientIP,
		phase:    PhaseProbing,
		started:  time.Now(),
	}
	m.active[a.id] = a
	metrics.ActiveDownloads.Set(float64(len(m.active)))
	return a, nil
}

func (m *Manager) unregister(a *active) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, a.id)
	metrics.ActiveDownloads.Set(float64(len(m.active)))
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Active lists in-flight downloads, oldest first.
func (m *Manager) Active() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.active))
	for _, a := range m.active {
		a.mu.Lock()
		out = append(out, Snapshot{
			ID:       a.id,
			URL:      a.url,
			Host:     a.host,
			ClientIP: a.clientIP,
			Phase:    a.phase,
			Bytes:    a.bytes,
			Started:  a.started,
		})
		a.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
