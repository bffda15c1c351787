package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestPreamble(t *testing.T) {
	cases := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
		wantBody   string
	}{
		{name: "preflight allowed", method: http.MethodOptions, origin: "https://todogenie-five.vercel.app", wantOrigin: "https://todogenie-five.vercel.app", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "preflight unknown", method: http.MethodOptions, origin: "https://evil.example", wantOrigin: "null", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "post local", method: http.MethodPost, origin: "http://localhost:8080", wantOrigin: "http://localhost:8080", wantStatus: http.StatusTeapot, wantBody: "next"},
		{name: "post no origin", method: http.MethodPost, wantOrigin: "null", wantStatus: http.StatusTeapot, wantBody: "next"},
	}

	next := func(c echo.Context) error { return c.String(http.StatusTeapot, "next") }
	h := RequestPreamble(DefaultAllowedOrigins)(next)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(tc.method, TranslateRoute, nil)
			if tc.origin != "" {
				req.Header.Set(echo.HeaderOrigin, tc.origin)
			}
			rec := httptest.NewRecorder()
			if err := h(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tc.wantStatus || rec.Body.String() != tc.wantBody {
				t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != tc.wantOrigin {
				t.Fatalf("expected allow origin %q, got %q", tc.wantOrigin, got)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowHeaders); got != preambleAllowHeaders {
				t.Fatalf("unexpected allow headers %q", got)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowMethods); got != "POST, OPTIONS" {
				t.Fatalf("unexpected allow methods %q", got)
			}
		})
	}
}

func TestRequestPreambleCustomOrigins(t *testing.T) {
	h := RequestPreamble([]string{" https://app.example "})(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, SubtasksRoute, nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://app.example" {
		t.Fatalf("expected configured origin to be reflected, got %q", got)
	}
}
