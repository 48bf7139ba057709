package downloads

import "net/http"

// headerWriter defers response headers until the first media byte
// arrives. A subprocess that dies before producing output therefore
// leaves the response uncommitted, and the pipeline can still fall back
// or report a proper error status.
type headerWriter struct {
	rw      http.ResponseWriter
	prepare func(http.Header)
	onWrite func(n int64)

	committed bool
	written   int64
}

func newHeaderWriter(rw http.ResponseWriter, prepare func(http.Header), onWrite func(n int64)) *headerWriter {
	return &headerWriter{rw: rw, prepare: prepare, onWrite: onWrite}
}

func (h *headerWriter) Write(p []byte) (int, error) {
	if !h.committed {
		h.prepare(h.rw.Header())
		h.rw.WriteHeader(http.StatusOK)
		h.committed = true
	}
	n, err := h.rw.Write(p)
	h.written += int64(n)
	if h.onWrite != nil && n > 0 {
		h.onWrite(int64(n))
	}
	// push chunks out as they arrive; the client is playing or saving
	// a stream, not waiting for a buffered document
	if f, ok := h.rw.(http.Flusher); ok && n > 0 {
		f.Flush()
	}
	return n, err
}

func (h *headerWriter) Written() int64 {
	return h.written
}

func (h *headerWriter) Committed() bool {
	return h.committed
}
