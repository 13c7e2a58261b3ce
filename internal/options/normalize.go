package options

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Profile selects which output formats a deployment accepts
type Profile string

const (
	// ProfileFull accepts png, svg, jpg, jpeg and pdf
	ProfileFull Profile = "full"
	// ProfileMinimal accepts png and svg only
	ProfileMinimal Profile = "minimal"
)

// ParseProfile validates a profile name
func ParseProfile(name string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(name))); p {
	case ProfileFull, ProfileMinimal:
		return p, nil
	case "":
		return ProfileFull, nil
	default:
		return "", fmt.Errorf("unknown format profile %q", name)
	}
}

// Supports reports whether the profile accepts a lower-cased format.
// png is always accepted since it is the fallback.
func (p Profile) Supports(format string) bool {
	switch format {
	case FormatPNG, FormatSVG:
		return true
	case FormatJPG, FormatJPEG, FormatPDF:
		return p != ProfileMinimal
	default:
		return false
	}
}

// Envelope is a parsed POST /render body
type Envelope struct {
	Config   RenderConfig
	AsBase64 bool
	Download bool
}

// Normalizer merges request bodies onto the defaults
type Normalizer struct {
	profile Profile
}

// NewNormalizer creates a normalizer for the given profile
func NewNormalizer(profile Profile) *Normalizer {
	if profile == "" {
		profile = ProfileFull
	}
	return &Normalizer{profile: profile}
}

// Profile returns the configured format profile
func (n *Normalizer) Profile() Profile {
	return n.profile
}

// Parse normalizes a raw request body and reads the transport flags.
// It never fails: a body that is not a JSON object yields the defaults.
func (n *Normalizer) Parse(body []byte) Envelope {
	fields := decodeObject(body)
	return Envelope{
		Config:   n.normalize(fields),
		AsBase64: truthy(fields["asBase64"], true),
		Download: truthy(fields["download"], false),
	}
}

// Normalize merges a raw request body onto the defaults
func (n *Normalizer) Normalize(body []byte) RenderConfig {
	return n.normalize(decodeObject(body))
}

func (n *Normalizer) normalize(fields map[string]json.RawMessage) RenderConfig {
	cfg := Defaults()

	data := fields["data"]
	switch kindOf(data) {
	case kindString:
		_ = json.Unmarshal(data, &cfg.Data)
	case kindObject:
		overrides := decodeObject(data)
		for key, raw := range overrides {
			cfg.apply(key, raw, true)
		}
	default:
		for key, raw := range fields {
			cfg.apply(key, raw, false)
		}
	}

	if !IsValidImageRef(cfg.Image) {
		cfg.Image = ""
	}
	cfg.Type = n.normalizeFormat(cfg.Type)

	return cfg
}

func (n *Normalizer) normalizeFormat(format string) string {
	format = strings.ToLower(format)
	if format == "" || !n.profile.Supports(format) {
		return FormatPNG
	}
	return format
}

// apply sets a single top-level key. With deep set, object values of the
// nested option groups are merged one level onto the current group;
// otherwise they replace it.
func (c *RenderConfig) apply(key string, raw json.RawMessage, deep bool) {
	switch key {
	case "width":
		setValue(&c.Width, raw)
	case "height":
		setValue(&c.Height, raw)
	case "margin":
		setValue(&c.Margin, raw)
	case "type":
		setValue(&c.Type, raw)
	case "data":
		setValue(&c.Data, raw)
	case "image":
		// Anything that is not a string is dropped by the image check.
		c.Image = ""
		setValue(&c.Image, raw)
	case "qrOptions":
		mergeGroup(&c.QROptions, raw, deep)
	case "dotsOptions":
		mergeGroup(&c.DotsOptions, raw, deep)
	case "backgroundOptions":
		mergeGroup(&c.BackgroundOptions, raw, deep)
	case "cornersSquareOptions":
		mergeGroup(&c.CornersSquareOptions, raw, deep)
	case "cornersDotOptions":
		mergeGroup(&c.CornersDotOptions, raw, deep)
	case "imageOptions":
		mergeGroup(&c.ImageOptions, raw, deep)
	}
}

// setValue overwrites dst only when raw decodes cleanly into its type.
func setValue[T any](dst *T, raw json.RawMessage) {
	if kindOf(raw) == kindNull {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = v
}

// mergeGroup applies an option group. A null inside a nested override
// merges nothing and keeps the group. Other non-object overrides reset the
// group to its zero value and the renderer falls back to its built-in styles.
func mergeGroup[T any](dst *T, raw json.RawMessage, deep bool) {
	var zero T
	kind := kindOf(raw)
	if deep && kind == kindNull {
		return
	}
	if kind != kindObject {
		*dst = zero
		return
	}
	if !deep {
		*dst = zero
	}
	// Fields with the wrong JSON type are skipped, the rest still apply.
	_ = json.Unmarshal(raw, dst)
}

// IsValidImageRef reports whether ref is a base64 image data URL or an
// absolute http(s) URL.
func IsValidImageRef(ref string) bool {
	if ref == "" {
		return false
	}
	if strings.HasPrefix(ref, "data:image/") && strings.Contains(ref, ";base64,") {
		return true
	}
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

type jsonKind int

const (
	kindMissing jsonKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

func kindOf(raw json.RawMessage) jsonKind {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return kindMissing
	}
	switch raw[0] {
	case 'n':
		return kindNull
	case 't', 'f':
		return kindBool
	case '"':
		return kindString
	case '[':
		return kindArray
	case '{':
		return kindObject
	default:
		return kindNumber
	}
}

func decodeObject(raw []byte) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	if kindOf(raw) != kindObject {
		return fields
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]json.RawMessage{}
	}
	return fields
}

// truthy coerces a flag the way loosely typed clients expect: missing or
// null gives def, numbers are true unless zero, strings unless empty.
func truthy(raw json.RawMessage, def bool) bool {
	switch kindOf(raw) {
	case kindMissing, kindNull:
		return def
	case kindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return def
		}
		return b
	case kindNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return def
		}
		return f != 0
	case kindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return def
		}
		return s != ""
	default:
		return true
	}
}
