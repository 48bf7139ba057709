package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"vidgrab/database"
	"vidgrab/downloads"
	"vidgrab/history"
	"vidgrab/metrics"
)

type downloadRequest struct {
	URL    string `json:"url" form:"url" query:"url"`
	Format string `json:"format" form:"format" query:"format"`
}

func HomeGet(c echo.Context) error {
	return c.Render(http.StatusOK, "home.html", map[string]interface{}{
		"Hosts":  list.Hosts(),
		"Footer": MakeFooter(),
	})
}

// Download streams the requested media back to the client. The media
// bytes are the response body; errors before the first byte get a JSON
// envelope, errors after it abort the connection.
func Download(c echo.Context) error {
	var req downloadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{"bad_request", "couldn't parse request"})
	}
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, errorBody{"bad_request", "url is required"})
	}

	host, err := list.Check(req.URL)
	if err != nil {
		metrics.RejectedTotal.WithLabelValues("not_allowed").Inc()
		status, code := httpError(err)
		return c.JSON(status, errorBody{code, err.Error()})
	}

	var remux bool
	switch req.Format {
	case "", "source":
	case "mp4":
		remux = true
	default:
		return c.JSON(http.StatusBadRequest, errorBody{"bad_request", "format must be source or mp4"})
	}

	histID, err := history.Record(database.Get(), req.URL, host, c.RealIP())
	if err != nil {
		log.Errorf("couldn't record download: %v", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	start := time.Now()
	res, err := manager.Serve(ctx, c.Response(), downloads.Request{
		URL:      req.URL,
		Host:     host,
		Remux:    remux,
		ClientIP: c.RealIP(),
		OnPhase: func(p downloads.Phase) {
			if histID == 0 || p != downloads.PhaseStreaming {
				return
			}
			if err := history.SetStatus(database.Get(), histID, history.Streaming); err != nil {
				log.Errorf("couldn't mark history row %d streaming: %v", histID, err)
			}
		},
	})

	finish(histID, res, err, time.Since(start))

	return respondAfterServe(c, req.URL, res, err)
}

// respondAfterServe translates the pipeline outcome into an HTTP
// response. A failure after media bytes went out panics with
// http.ErrAbortHandler: the recover middleware re-raises it and net/http
// severs the connection, which is the only way to signal truncation on a
// committed 200.
func respondAfterServe(c echo.Context, rawURL string, res downloads.Result, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, downloads.ErrAborted) {
		log.Infof("client aborted download of %s after %d bytes", rawURL, res.Bytes)
		return nil
	}
	if res.Committed {
		log.Errorf("download of %s failed mid-stream: %v", rawURL, err)
		panic(http.ErrAbortHandler)
	}

	status, code := httpError(err)
	return c.JSON(status, errorBody{code, err.Error()})
}

func finish(histID uint, res downloads.Result, err error, elapsed time.Duration) {
	status := history.Completed
	code := ""
	switch {
	case err == nil:
	case errors.Is(err, downloads.ErrAborted):
		status = history.Aborted
		code = "aborted"
	default:
		status = history.Failed
		_, code = httpError(err)
	}

	mode := res.Mode
	if mode == "" {
		mode = "none"
	}
	metrics.DownloadsTotal.WithLabelValues(mode, string(status)).Inc()

	if histID == 0 {
		return
	}
	if err := history.Finish(database.Get(), histID, status, res.Mode,
		res.Info.Title, code, res.Bytes, elapsed); err != nil {
		log.Errorf("couldn't finish history row %d: %v", histID, err)
	}
}
