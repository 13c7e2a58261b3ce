package render

import (
	"encoding/base64"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
)

// ContentType returns the MIME type for a normalized format
func ContentType(format string) string {
	switch format {
	case options.FormatSVG:
		return "image/svg+xml"
	case options.FormatPDF:
		return "application/pdf"
	case options.FormatJPG, options.FormatJPEG:
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// Extension returns the file extension and display name for a format;
// jpeg is reported as jpg.
func Extension(format string) string {
	switch format {
	case options.FormatJPEG:
		return options.FormatJPG
	case options.FormatSVG, options.FormatPDF, options.FormatJPG:
		return format
	default:
		return options.FormatPNG
	}
}

// DataURL encodes rendered bytes as data:<mime>;base64,<payload>
func DataURL(format string, data []byte) string {
	return "data:" + ContentType(format) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
