package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	preambleAllowHeaders = "authorization, x-client-info, apikey, content-type"
	preambleAllowMethods = "POST, OPTIONS"
)

// DefaultAllowedOrigins lists the browser origins served when none are configured.
var DefaultAllowedOrigins = []string{
	"http://localhost:8080",
	"https://todogenie-8aqo57vvh-princesajjadhussains-projects.vercel.app",
	"https://todogenie-git-main-princesajjadhussains-projects.vercel.app",
	"https://todogenie-five.vercel.app",
}

// RequestPreamble emits CORS headers for every response and answers
// pre-flight requests. The request Origin is reflected only when it is in
// allowed; any other origin receives "null".
func RequestPreamble(allowed []string) echo.MiddlewareFunc {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowOrigin := "null"
			if origin := c.Request().Header.Get(echo.HeaderOrigin); origin != "" {
				if _, ok := origins[origin]; ok {
					allowOrigin = origin
				}
			}

			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)
			h.Set(echo.HeaderAccessControlAllowHeaders, preambleAllowHeaders)
			h.Set(echo.HeaderAccessControlAllowMethods, preambleAllowMethods)
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if c.Request().Method == http.MethodOptions {
				return c.String(http.StatusOK, "ok")
			}
			return next(c)
		}
	}
}
