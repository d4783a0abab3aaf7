package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/shinyyama/snaplist-backend/internal/reqctx"
)

// RequestContext copies the request id assigned by echo's RequestID
// middleware into the request context so services can log with it.
func RequestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		if rid == "" {
			rid = c.Request().Header.Get(echo.HeaderXRequestID)
		}
		if rid != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(reqctx.WithRID(req.Context(), rid)))
		}
		return next(c)
	}
}
