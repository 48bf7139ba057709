package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Middleware enforces the limiter per client IP. Store failures fail
// open: throttling is protection, not correctness, and a dead Redis
// should not take the download endpoint with it.
func Middleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retryAfter, err := l.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				log.Warnf("rate limit store error, allowing request: %v", err)
				return next(c)
			}
			if !ok {
				c.Response().Header().Set("Retry-After",
					strconv.Itoa(int(retryAfter.Seconds())+1))
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":  "rate_limit_exceeded",
					"detail": "Too many requests. Please try again later.",
				})
			}
			return next(c)
		}
	}
}
