package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

type offlineDialer struct{}

func (offlineDialer) Dial(context.Context, string, string, pkgWhatsApp.Listener) (pkgWhatsApp.Transport, error) {
	return nil, errors.New("offline")
}

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	manager := pkgWhatsApp.NewManager(pkgWhatsApp.Config{}, pkgWhatsApp.Dependencies{Dialer: offlineDialer{}})
	if err := manager.Register("acme", ""); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	ctl := &Controller{Manager: manager}
	app := fiber.New(fiber.Config{ErrorHandler: router.HttpErrorHandler})
	app.Post("/text", ctl.SendText)
	app.Post("/buttons", ctl.SendButtons)
	app.Post("/list", ctl.SendList)
	app.Post("/url-button", ctl.SendURLButton)
	app.Post("/copy-button", ctl.SendCopyButton)
	app.Post("/interactive", ctl.SendInteractive)
	app.Post("/image", ctl.SendImage)
	app.Post("/reaction", ctl.SendReaction)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, router.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, router.Response) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var out router.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("invalid body %q: %v", raw, err)
	}
	return resp.StatusCode, out
}

func TestSendPathsRejectBadInput(t *testing.T) {
	app := testApp(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"malformed body", "/text", `{"instance":`, http.StatusBadRequest},
		{"invalid instance name", "/text", `{"instance":"no spaces","number":"5511999990000","text":"hi"}`, http.StatusBadRequest},
		{"missing recipient", "/text", `{"instance":"acme","text":"hi"}`, http.StatusBadRequest},
		{"recipient not a phone", "/text", `{"instance":"acme","number":"call me","text":"hi"}`, http.StatusBadRequest},
		{"empty text", "/text", `{"instance":"acme","number":"5511999990000","text":"  "}`, http.StatusBadRequest},
		{"too many buttons", "/buttons", `{"instance":"acme","number":"5511999990000","message":"pick",
			"buttons":[{"text":"a"},{"text":"b"},{"text":"c"},{"text":"d"}]}`, http.StatusBadRequest},
		{"list without sections", "/list", `{"instance":"acme","number":"5511999990000","message":"menu","buttonText":"open"}`, http.StatusBadRequest},
		{"url button without url", "/url-button", `{"instance":"acme","number":"5511999990000","message":"visit"}`, http.StatusBadRequest},
		{"copy button without code", "/copy-button", `{"instance":"acme","number":"5511999990000","message":"code"}`, http.StatusBadRequest},
		{"reaction without message id", "/reaction", `{"instance":"acme","number":"5511999990000","emoji":"👍"}`, http.StatusBadRequest},
		{"image not base64", "/image", `{"instance":"acme","number":"5511999990000","image":"%%%"}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := post(t, app, tc.path, tc.body)
			if code != tc.want {
				t.Fatalf("status = %d (%s), want %d", code, resp.Message, tc.want)
			}
			if resp.Status {
				t.Fatal("envelope status should be false")
			}
		})
	}
}

func TestSendPathsReportInstanceState(t *testing.T) {
	app := testApp(t)

	code, resp := post(t, app, "/text", `{"instance":"ghost","number":"5511999990000","text":"hi"}`)
	if code != http.StatusNotFound {
		t.Fatalf("unknown instance: status = %d, want 404", code)
	}

	code, resp = post(t, app, "/text", `{"instance":"acme","to":"5511999990000@s.whatsapp.net","text":"hi"}`)
	if code != http.StatusBadRequest || resp.Message != pkgWhatsApp.ErrNotConnected.Error() {
		t.Fatalf("disconnected instance: got %d %q", code, resp.Message)
	}

	code, resp = post(t, app, "/interactive", `{"instance":"acme","number":"5511999990000","body":{"text":"hello"}}`)
	if code != http.StatusBadRequest || resp.Message != pkgWhatsApp.ErrNotConnected.Error() {
		t.Fatalf("interactive on disconnected instance: got %d %q", code, resp.Message)
	}
}

func TestSendImageUpload(t *testing.T) {
	app := testApp(t)

	form := func(withFile bool) *http.Request {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("instance", "acme")
		_ = w.WriteField("number", "5511999990000")
		_ = w.WriteField("caption", "look")
		if withFile {
			part, _ := w.CreateFormFile("file", "pic.png")
			_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n0000"))
		}
		_ = w.Close()
		req := httptest.NewRequest(http.MethodPost, "/image", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req
	}

	if code, resp := do(t, app, form(false)); code != http.StatusBadRequest || resp.Message != "file is required" {
		t.Fatalf("without file: got %d %q", code, resp.Message)
	}
	if code, resp := do(t, app, form(true)); code != http.StatusBadRequest || resp.Message != pkgWhatsApp.ErrNotConnected.Error() {
		t.Fatalf("with file on disconnected instance: got %d %q", code, resp.Message)
	}
}
