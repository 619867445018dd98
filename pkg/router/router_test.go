package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestParseBodyLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", defaultBodyLimit},
		{"512K", 512 * 1024},
		{"8m", 8 * 1024 * 1024},
		{"1G", 1024 * 1024 * 1024},
		{"2048", 2048},
		{"-3M", defaultBodyLimit},
		{"lots", defaultBodyLimit},
	}
	for _, tc := range tests {
		if got := ParseBodyLimit(tc.in); got != tc.want {
			t.Errorf("ParseBodyLimit(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	for in, want := range map[string]string{"": "", "/": "", "api": "/api", "/api/": "/api", " /v/x/ ": "/v/x"} {
		if got := NormalizeBaseURL(in); got != want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func decode(t *testing.T, resp *http.Response) Response {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("invalid body %q: %v", body, err)
	}
	return out
}

func TestErrorHandlerAndRecovery(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: HttpErrorHandler})
	app.Use(HttpRequestID())
	app.Use(RecoveryMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error { panic("kaboom") })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusTeapot, "short and stout") })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("plain failure") })

	tests := []struct {
		path    string
		code    int
		message string
	}{
		{"/boom", http.StatusInternalServerError, "kaboom"},
		{"/teapot", http.StatusTeapot, "short and stout"},
		{"/plain", http.StatusInternalServerError, "plain failure"},
		{"/missing", http.StatusNotFound, "Cannot GET /missing"},
	}
	for _, tc := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tc.code {
			t.Fatalf("%s: status %d, want %d", tc.path, resp.StatusCode, tc.code)
		}
		if resp.Header.Get(HeaderRequestID) == "" {
			t.Fatalf("%s: missing request id header", tc.path)
		}
		out := decode(t, resp)
		if out.Status || out.Code != tc.code || out.Error != tc.message {
			t.Fatalf("%s: unexpected envelope %+v", tc.path, out)
		}
	}
}

func TestRequestIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(HttpRequestID())
	app.Get("/", func(c *fiber.Ctx) error { return ResponseSuccess(c, "") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get(HeaderRequestID); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
	if out := decode(t, resp); !out.Status || out.Message != "OK" {
		t.Fatalf("unexpected envelope %+v", out)
	}
}
