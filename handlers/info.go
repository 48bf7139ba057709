package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"vidgrab/config"
	"vidgrab/metrics"
	"vidgrab/ytdlp"
)

type infoResponse struct {
	Title    string  `json:"title"`
	Ext      string  `json:"ext"`
	Duration float64 `json:"duration"`
	Filesize int64   `json:"filesize"`
	Host     string  `json:"host"`
}

// InfoGet probes a URL without downloading, so the front-end can show
// title and size before the user commits.
func InfoGet(c echo.Context) error {
	rawURL := c.QueryParam("url")
	if rawURL == "" {
		return c.JSON(http.StatusBadRequest, errorBody{"bad_request", "url is required"})
	}

	host, err := list.Check(rawURL)
	if err != nil {
		metrics.RejectedTotal.WithLabelValues("not_allowed").Inc()
		status, code := httpError(err)
		return c.JSON(status, errorBody{code, err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), config.GetProbeTimeout())
	defer cancel()

	info, err := ytdlp.Probe(ctx, rawURL, ytdlp.Options{
		MaxDuration: config.GetMaxDuration(),
		MaxFileSize: config.GetMaxFileSize(),
	})
	if err != nil {
		status, code := httpError(err)
		return c.JSON(status, errorBody{code, err.Error()})
	}

	return c.JSON(http.StatusOK, infoResponse{
		Title:    info.Title,
		Ext:      info.Ext,
		Duration: info.Duration,
		Filesize: info.Filesize,
		Host:     host,
	})
}
