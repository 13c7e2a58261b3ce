package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/circuitbreaker"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/imagefetch"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/metrics"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/render"
)

type stubEngine struct {
	out    []byte
	err    error
	panics bool
	last   options.RenderConfig
}

func (s *stubEngine) Render(ctx context.Context, cfg options.RenderConfig) ([]byte, error) {
	s.last = cfg
	if s.panics {
		panic("engine exploded")
	}
	return s.out, s.err
}

type testApp struct {
	app      *fiber.App
	metrics  *metrics.Metrics
	draining *atomic.Bool
}

func newTestApp(t *testing.T, profile options.Profile, engine render.Engine) *testApp {
	t.Helper()
	logger := hclog.NewNullLogger()
	m := metrics.New()
	breakers := circuitbreaker.NewRegistry(5, 1, time.Minute, 16, m.ImageHostCircuitState)
	draining := &atomic.Bool{}
	handlers := &Handlers{
		Render: NewRenderHandler(options.NewNormalizer(profile), engine, m, logger),
		Health: NewHealthHandler(profile, breakers, draining),
	}
	app := NewApp(AppConfig{BodyLimit: 4 * 1024 * 1024}, handlers, m, logger)
	return &testApp{app: app, metrics: m, draining: draining}
}

func realEngine() render.Engine {
	fetcher := imagefetch.New(imagefetch.Config{
		Timeout:        2 * time.Second,
		ConnectTimeout: 500 * time.Millisecond,
	}, nil, hclog.NewNullLogger())
	return render.NewQREngine(fetcher, 90)
}

func (a *testApp) post(t *testing.T, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func (a *testApp) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(readBody(t, resp), v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRenderDefaultsToBase64PNG(t *testing.T) {
	a := newTestApp(t, options.ProfileFull, realEngine())

	resp := a.post(t, `{"data":"https://example.com"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected JSON content type, got %q", ct)
	}

	var out RenderResponse
	decodeJSON(t, resp, &out)
	if out.Format != "png" {
		t.Fatalf("expected format png, got %q", out.Format)
	}
	prefix := "data:image/png;base64,"
	if !strings.HasPrefix(out.Base64, prefix) {
		t.Fatalf("unexpected data URL prefix: %.40q", out.Base64)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out.Base64, prefix))
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatal("payload is not a PNG")
	}
}

func TestRenderBinaryDownload(t *testing.T) {
	a := newTestApp(t, options.ProfileFull, realEngine())

	resp := a.post(t, `{"asBase64":false,"download":true,"data":"https://a.b"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="qr.png"` {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	if body := readBody(t, resp); !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatal("body is not a PNG")
	}
}

func TestRenderBinaryInline(t *testing.T) {
	a := newTestApp(t, options.ProfileFull, &stubEngine{out: []byte("<svg/>")})

	resp := a.post(t, `{"asBase64":0,"type":"svg"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("expected image/svg+xml, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		t.Fatalf("expected no Content-Disposition, got %q", cd)
	}
	if body := string(readBody(t, resp)); body != "<svg/>" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestRenderJPEGReportsJPG(t *testing.T) {
	engine := &stubEngine{out: []byte{0xFF, 0xD8, 0xFF}}
	a := newTestApp(t, options.ProfileFull, engine)

	var out RenderResponse
	decodeJSON(t, a.post(t, `{"type":"jpeg"}`), &out)
	if out.Format != "jpg" {
		t.Fatalf("expected format jpg, got %q", out.Format)
	}
	if !strings.HasPrefix(out.Base64, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected data URL %q", out.Base64)
	}
	if engine.last.Type != options.FormatJPEG {
		t.Fatalf("engine should receive jpeg, got %q", engine.last.Type)
	}

	resp := a.post(t, `{"type":"jpeg","asBase64":false,"download":true}`)
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="qr.jpg"` {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %q", ct)
	}
}

func TestRenderMinimalProfileForcesPNG(t *testing.T) {
	engine := &stubEngine{out: []byte("x")}
	a := newTestApp(t, options.ProfileMinimal, engine)

	var out RenderResponse
	decodeJSON(t, a.post(t, `{"type":"pdf"}`), &out)
	if engine.last.Type != options.FormatPNG {
		t.Fatalf("expected png, got %q", engine.last.Type)
	}
	if out.Format != "png" {
		t.Fatalf("expected format png, got %q", out.Format)
	}
}

func TestRenderMalformedBodyUsesDefaults(t *testing.T) {
	engine := &stubEngine{out: []byte("x")}
	a := newTestApp(t, options.ProfileFull, engine)

	resp := a.post(t, `{not json`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if engine.last.Data != options.Defaults().Data {
		t.Fatalf("expected default data, got %q", engine.last.Data)
	}
}

func TestRenderEngineFailure(t *testing.T) {
	a := newTestApp(t, options.ProfileFull, &stubEngine{err: errors.New("boom")})

	resp := a.post(t, `{}`)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	var out ErrorResponse
	decodeJSON(t, resp, &out)
	if out.Error != ErrCodeRenderFailed {
		t.Fatalf("expected %q, got %q", ErrCodeRenderFailed, out.Error)
	}
	if out.Detail != "boom" {
		t.Fatalf("expected detail boom, got %q", out.Detail)
	}
}

func TestRenderEnginePanic(t *testing.T) {
	a := newTestApp(t, options.ProfileFull, &stubEngine{panics: true})

	resp := a.post(t, `{}`)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	var out ErrorResponse
	decodeJSON(t, resp, &out)
	if out.Error != ErrCodeRenderFailed {
		t.Fatalf("expected %q, got %q", ErrCodeRenderFailed, out.Error)
	}
	if !strings.Contains(out.Detail, "engine exploded") {
		t.Fatalf("expected panic value in detail, got %q", out.Detail)
	}

	if n := requestCount(t, a.metrics, "/render", "500"); n != 1 {
		t.Fatalf("expected 1 observed 500 for /render, got %d", n)
	}

	// the server keeps serving after a panic
	if resp := a.get(t, "/health"); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 after panic, got %d", resp.StatusCode)
	}
}

func TestRenderWithDataURLImage(t *testing.T) {
	logo := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			logo.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, logo); err != nil {
		t.Fatal(err)
	}
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	a := newTestApp(t, options.ProfileFull, realEngine())
	body, _ := json.Marshal(map[string]interface{}{
		"asBase64": false,
		"data": map[string]interface{}{
			"data":  "https://example.com",
			"image": ref,
		},
	})
	resp := a.post(t, string(body))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	img, err := png.Decode(bytes.NewReader(readBody(t, resp)))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	b := img.Bounds()
	r, g, bl, _ := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	if r>>8 < 200 || g>>8 > 60 || bl>>8 > 60 {
		t.Fatalf("expected logo red at the centre, got rgb(%d,%d,%d)", r>>8, g>>8, bl>>8)
	}
}

func TestRenderUnreachableImageFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/logo.png"
	srv.Close()

	for name, body := range map[string]string{
		"nested": `{"data":{"data":"https://example.com","image":"` + url + `"}}`,
		"flat":   `{"image":"` + url + `"}`,
	} {
		a := newTestApp(t, options.ProfileFull, realEngine())
		resp := a.post(t, body)
		if resp.StatusCode != fiber.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", name, resp.StatusCode)
		}
		var out ErrorResponse
		decodeJSON(t, resp, &out)
		if out.Error != ErrCodeRenderFailed || !strings.Contains(out.Detail, "load image") {
			t.Fatalf("%s: unexpected error body %+v", name, out)
		}
	}
}

func TestRenderStringDataIgnoresSiblingImage(t *testing.T) {
	engine := &stubEngine{out: []byte("x")}
	a := newTestApp(t, options.ProfileFull, engine)

	resp := a.post(t, `{"data":"https://example.com","image":"https://cdn.example.com/logo.png"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if engine.last.Image != "" || engine.last.Data != "https://example.com" {
		t.Fatalf("unexpected config %+v", engine.last)
	}
}

func TestRenderInvalidImageIsIgnored(t *testing.T) {
	engine := &stubEngine{out: []byte("x")}
	a := newTestApp(t, options.ProfileFull, engine)

	resp := a.post(t, `{"image":"ftp://example.com/logo.png"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if engine.last.Image != "" {
		t.Fatalf("expected image to be dropped, got %q", engine.last.Image)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, options.ProfileFull, &stubEngine{out: []byte("x")})
	a.post(t, `{}`)

	resp := a.get(t, "/metrics")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := string(readBody(t, resp))
	for _, name := range []string{"qr_render_total", "qr_render_latency_seconds", "http_request_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}

// requestCount returns the number of observed requests for an endpoint and status
func requestCount(t *testing.T, m *metrics.Metrics, endpoint, status string) uint64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "http_request_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["endpoint"] == endpoint && labels["status_code"] == status {
				return metric.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}
