// Package options turns inbound render requests into complete render configurations.
package options

// Output formats understood by the renderer
const (
	FormatPNG  = "png"
	FormatSVG  = "svg"
	FormatJPG  = "jpg"
	FormatJPEG = "jpeg"
	FormatPDF  = "pdf"
)

// QROptions controls symbol encoding
type QROptions struct {
	// TypeNumber forces a QR version (1-40), 0 selects the smallest fitting version
	TypeNumber           int    `json:"typeNumber"`
	ErrorCorrectionLevel string `json:"errorCorrectionLevel"`
}

// DotsOptions styles the data modules
type DotsOptions struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

// BackgroundOptions styles the canvas background
type BackgroundOptions struct {
	Color string `json:"color"`
}

// CornersSquareOptions styles the outer ring of the three finder patterns
type CornersSquareOptions struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

// CornersDotOptions styles the inner 3x3 dot of the finder patterns
type CornersDotOptions struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

// ImageOptions controls placement of the embedded image
type ImageOptions struct {
	HideBackgroundDots bool    `json:"hideBackgroundDots"`
	ImageSize          float64 `json:"imageSize"`
	Margin             int     `json:"margin"`
	CrossOrigin        string  `json:"crossOrigin,omitempty"`
}

// RenderConfig is the complete set of rendering parameters
type RenderConfig struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Margin int    `json:"margin"`
	Type   string `json:"type"`
	Data   string `json:"data"`

	QROptions            QROptions            `json:"qrOptions"`
	DotsOptions          DotsOptions          `json:"dotsOptions"`
	BackgroundOptions    BackgroundOptions    `json:"backgroundOptions"`
	CornersSquareOptions CornersSquareOptions `json:"cornersSquareOptions"`
	CornersDotOptions    CornersDotOptions    `json:"cornersDotOptions"`

	// Image is either a base64 image data URL or an absolute http(s) URL.
	// Empty means no embedded image.
	Image        string       `json:"image,omitempty"`
	ImageOptions ImageOptions `json:"imageOptions"`
}

// defaults is never handed out directly; Defaults returns a copy.
var defaults = RenderConfig{
	Width:  512,
	Height: 512,
	Margin: 10,
	Type:   FormatPNG,
	Data:   "https://sharif.ir",
	QROptions: QROptions{
		ErrorCorrectionLevel: "Q",
	},
	DotsOptions:          DotsOptions{Type: "rounded", Color: "#1966ab"},
	BackgroundOptions:    BackgroundOptions{Color: "#ffffff"},
	CornersSquareOptions: CornersSquareOptions{Type: "dot", Color: "#1966ab"},
	CornersDotOptions:    CornersDotOptions{Type: "dot", Color: "#1966ab"},
	ImageOptions: ImageOptions{
		HideBackgroundDots: true,
		ImageSize:          0.22,
		Margin:             12,
	},
}

// Defaults returns a fresh copy of the server-side default configuration.
// RenderConfig holds no reference types, so the copy shares nothing.
func Defaults() RenderConfig {
	return defaults
}
