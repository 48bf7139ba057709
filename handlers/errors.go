package handlers

import (
	"errors"
	"net/http"

	"vidgrab/allowlist"
	"vidgrab/downloads"
	"vidgrab/ytdlp"
)

// httpError maps pipeline errors to an HTTP status and a stable error
// code for the JSON envelope.
func httpError(err error) (int, string) {
	switch {
	case errors.Is(err, allowlist.ErrBadURL), errors.Is(err, allowlist.ErrBadScheme):
		return http.StatusBadRequest, "bad_url"
	case errors.Is(err, allowlist.ErrHostNotAllowed):
		return http.StatusForbidden, "host_not_allowed"
	case errors.Is(err, ytdlp.ErrUnsupportedURL):
		return http.StatusBadRequest, "unsupported_url"
	case errors.Is(err, ytdlp.ErrUnavailable):
		return http.StatusNotFound, "unavailable"
	case errors.Is(err, ytdlp.ErrGeoRestricted):
		return http.StatusForbidden, "geo_restricted"
	case errors.Is(err, ytdlp.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ytdlp.ErrTooLong):
		return http.StatusRequestEntityTooLarge, "too_long"
	case errors.Is(err, ytdlp.ErrUpstreamThrottled):
		return http.StatusBadGateway, "upstream_throttled"
	case errors.Is(err, ytdlp.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, downloads.ErrBusy):
		return http.StatusServiceUnavailable, "busy"
	}
	return http.StatusBadGateway, "download_failed"
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}
