package options

import (
	"reflect"
	"testing"
)

func TestParseStringData(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	env := n.Parse([]byte(`{"data": "https://example.com"}`))

	want := Defaults()
	want.Data = "https://example.com"
	if !reflect.DeepEqual(env.Config, want) {
		t.Fatalf("config mismatch:\n got %+v\nwant %+v", env.Config, want)
	}
	if !env.AsBase64 {
		t.Fatal("expected asBase64 to default to true")
	}
	if env.Download {
		t.Fatal("expected download to default to false")
	}
}

func TestParseObjectDataMergesOneLevel(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cfg := n.Normalize([]byte(`{"data": {"dotsOptions": {"color": "#ff0000"}, "width": 300}}`))

	if cfg.DotsOptions.Type != "rounded" {
		t.Fatalf("expected default dots type to survive, got %q", cfg.DotsOptions.Type)
	}
	if cfg.DotsOptions.Color != "#ff0000" {
		t.Fatalf("expected overridden color, got %q", cfg.DotsOptions.Color)
	}
	if cfg.Width != 300 {
		t.Fatalf("expected width 300, got %d", cfg.Width)
	}
	if cfg.Height != 512 {
		t.Fatalf("expected default height, got %d", cfg.Height)
	}
	if cfg.Data != "https://sharif.ir" {
		t.Fatalf("expected default payload, got %q", cfg.Data)
	}
}

func TestParseObjectDataNonObjectGroupReplaces(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cfg := n.Normalize([]byte(`{"data": {"dotsOptions": 5, "backgroundOptions": "red"}}`))
	if cfg.DotsOptions != (DotsOptions{}) {
		t.Fatalf("expected dots group to be reset, got %+v", cfg.DotsOptions)
	}
	if cfg.BackgroundOptions != (BackgroundOptions{}) {
		t.Fatalf("expected background group to be reset, got %+v", cfg.BackgroundOptions)
	}
}

func TestParseObjectDataNullGroupKeepsDefaults(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cfg := n.Normalize([]byte(`{"data": {"dotsOptions": null, "imageOptions": null, "margin": 2}}`))
	want := Defaults()
	if cfg.DotsOptions != want.DotsOptions {
		t.Fatalf("dots = %+v, want %+v", cfg.DotsOptions, want.DotsOptions)
	}
	if cfg.ImageOptions != want.ImageOptions {
		t.Fatalf("image options = %+v, want %+v", cfg.ImageOptions, want.ImageOptions)
	}
	if cfg.Margin != 2 {
		t.Fatalf("margin = %d, want 2", cfg.Margin)
	}
}

func TestParseFlatBodyNullGroupResets(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cfg := n.Normalize([]byte(`{"dotsOptions": null}`))
	if cfg.DotsOptions != (DotsOptions{}) {
		t.Fatalf("expected dots group to be reset, got %+v", cfg.DotsOptions)
	}
}

func TestParseFlatBodyShallowMerge(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cfg := n.Normalize([]byte(`{"data": 42, "margin": 4, "dotsOptions": {"color": "#000000"}}`))

	want := Defaults()
	want.Margin = 4
	want.DotsOptions = DotsOptions{Color: "#000000"}
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("config mismatch:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestFlatBodyKeepsUntouchedDefaults(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	bodies := []string{
		`{}`,
		`{"width": 100}`,
		`{"type": "svg", "backgroundOptions": {"color": "#eeeeee"}}`,
		`{"qrOptions": {"errorCorrectionLevel": "H"}, "height": 64}`,
	}
	def := Defaults()
	for _, body := range bodies {
		cfg := n.Normalize([]byte(body))
		if body == `{}` && !reflect.DeepEqual(cfg, def) {
			t.Fatalf("empty body should produce defaults, got %+v", cfg)
		}
		if cfg.CornersDotOptions != def.CornersDotOptions {
			t.Fatalf("%s: corners dot options changed: %+v", body, cfg.CornersDotOptions)
		}
		if cfg.ImageOptions != def.ImageOptions {
			t.Fatalf("%s: image options changed: %+v", body, cfg.ImageOptions)
		}
		if cfg.Data != def.Data {
			t.Fatalf("%s: payload changed: %q", body, cfg.Data)
		}
	}
}

func TestWrongTypedValuesKeepDefaults(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cfg := n.Normalize([]byte(`{"width": "big", "type": 7, "height": 256}`))
	if cfg.Width != 512 {
		t.Fatalf("expected default width, got %d", cfg.Width)
	}
	if cfg.Type != FormatPNG {
		t.Fatalf("expected png, got %q", cfg.Type)
	}
	if cfg.Height != 256 {
		t.Fatalf("expected height 256, got %d", cfg.Height)
	}

	cfg = n.Normalize([]byte(`{"data": {"margin": "wide", "dotsOptions": {"type": 3, "color": "#000000"}}}`))
	if cfg.Margin != 10 {
		t.Fatalf("expected default margin, got %d", cfg.Margin)
	}
	if cfg.DotsOptions.Type != "rounded" || cfg.DotsOptions.Color != "#000000" {
		t.Fatalf("unexpected dots options %+v", cfg.DotsOptions)
	}
}

func TestMalformedBodyYieldsDefaults(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	for _, body := range []string{``, `not json`, `[1,2]`, `"text"`, `{"width":`} {
		env := n.Parse([]byte(body))
		if !reflect.DeepEqual(env.Config, Defaults()) {
			t.Fatalf("%q: expected defaults, got %+v", body, env.Config)
		}
		if !env.AsBase64 || env.Download {
			t.Fatalf("%q: unexpected flags %+v", body, env)
		}
	}
}

func TestInvalidImageIsDropped(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cases := map[string]string{
		`{"image": "not-a-url"}`:                              "",
		`{"image": 12}`:                                       "",
		`{"image": "data:text/plain;base64,aGk="}`:            "",
		`{"image": "data:image/png,raw"}`:                     "",
		`{"image": "ftp://host/logo.png"}`:                    "",
		`{"image": "https://cdn.example.com/logo.png"}`:       "https://cdn.example.com/logo.png",
		`{"image": "http://cdn.example.com/logo.png"}`:        "http://cdn.example.com/logo.png",
		`{"data": {"image": "data:image/png;base64,iVBORw"}}`: "data:image/png;base64,iVBORw",
		`{"data": {"image": "logo.png"}}`:                     "",
	}
	for body, want := range cases {
		cfg := n.Normalize([]byte(body))
		if cfg.Image != want {
			t.Errorf("%s: got image %q, want %q", body, cfg.Image, want)
		}
	}
}

func TestFormatNormalization(t *testing.T) {
	cases := []struct {
		profile Profile
		in      string
		want    string
	}{
		{ProfileFull, "bmp", "png"},
		{ProfileFull, "SVG", "svg"},
		{ProfileFull, "JPEG", "jpeg"},
		{ProfileFull, "jpg", "jpg"},
		{ProfileFull, "Pdf", "pdf"},
		{ProfileFull, "", "png"},
		{ProfileMinimal, "pdf", "png"},
		{ProfileMinimal, "jpg", "png"},
		{ProfileMinimal, "svg", "svg"},
	}
	for _, tc := range cases {
		n := NewNormalizer(tc.profile)
		cfg := n.Normalize([]byte(`{"type": "` + tc.in + `"}`))
		if cfg.Type != tc.want {
			t.Errorf("%s/%q: got %q, want %q", tc.profile, tc.in, cfg.Type, tc.want)
		}
	}
}

func TestTransportFlags(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cases := []struct {
		body     string
		asBase64 bool
		download bool
	}{
		{`{"asBase64": false, "download": true, "data": "https://a.b"}`, false, true},
		{`{"asBase64": null, "download": null}`, true, false},
		{`{"asBase64": 0, "download": 1}`, false, true},
		{`{"asBase64": "", "download": "no"}`, false, true},
		{`{"data": {"asBase64": false}}`, true, false},
	}
	for _, tc := range cases {
		env := n.Parse([]byte(tc.body))
		if env.AsBase64 != tc.asBase64 || env.Download != tc.download {
			t.Errorf("%s: got asBase64=%v download=%v", tc.body, env.AsBase64, env.Download)
		}
	}
}

func TestDefaultsAreNotShared(t *testing.T) {
	n := NewNormalizer(ProfileFull)
	cfg := n.Normalize([]byte(`{"data": {"dotsOptions": {"color": "#000000"}}}`))
	cfg.BackgroundOptions.Color = "#123456"

	if Defaults().DotsOptions.Color != "#1966ab" || Defaults().BackgroundOptions.Color != "#ffffff" {
		t.Fatal("defaults were mutated by a request")
	}
}

func TestParseProfile(t *testing.T) {
	if p, err := ParseProfile("Minimal"); err != nil || p != ProfileMinimal {
		t.Fatalf("got %q, %v", p, err)
	}
	if p, err := ParseProfile(""); err != nil || p != ProfileFull {
		t.Fatalf("got %q, %v", p, err)
	}
	if _, err := ParseProfile("legacy"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}
