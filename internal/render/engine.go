// Package render draws styled QR codes and encodes them as PNG, JPEG, SVG or PDF.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"regexp"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
)

const maxDimension = 8192

var (
	// ErrUnsupportedFormat is returned for output formats without a writer
	ErrUnsupportedFormat = errors.New("unsupported output format")
	// ErrInvalidColor is returned for colors that are not hex triplets
	ErrInvalidColor = errors.New("invalid color")
	// ErrInvalidSize is returned when dimensions leave no room for the code
	ErrInvalidSize = errors.New("invalid canvas size")
)

// Engine renders a normalized configuration to bytes in cfg.Type
type Engine interface {
	Render(ctx context.Context, cfg options.RenderConfig) ([]byte, error)
}

// ImageSource resolves embedded image references
type ImageSource interface {
	Fetch(ctx context.Context, ref string) (image.Image, error)
}

// QREngine is the Engine backed by go-qrcode and canvas
type QREngine struct {
	images      ImageSource
	jpegQuality int
}

// NewQREngine creates a new engine. images may be nil, in which case any
// configuration carrying an image fails to render.
func NewQREngine(images ImageSource, jpegQuality int) *QREngine {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 92
	}
	return &QREngine{images: images, jpegQuality: jpegQuality}
}

// Render draws the code described by cfg and encodes it
func (e *QREngine) Render(ctx context.Context, cfg options.RenderConfig) ([]byte, error) {
	m, lvl, err := newMatrix(cfg.Data, cfg.QROptions)
	if err != nil {
		return nil, err
	}

	var logo image.Image
	if cfg.Image != "" {
		if e.images == nil {
			return nil, errors.New("embedded images are not available")
		}
		logo, err = e.images.Fetch(ctx, cfg.Image)
		if err != nil {
			return nil, fmt.Errorf("load image: %w", err)
		}
	}

	c, err := draw(m, lvl, cfg, logo)
	if err != nil {
		return nil, err
	}
	return e.encode(c, cfg.Type)
}

func (e *QREngine) encode(c *canvas.Canvas, format string) ([]byte, error) {
	var write canvas.Writer
	switch format {
	case options.FormatPNG:
		write = renderers.PNG(canvas.DPMM(1.0))
	case options.FormatJPG, options.FormatJPEG:
		write = renderers.JPEG(canvas.DPMM(1.0), &jpeg.Options{Quality: e.jpegQuality})
	case options.FormatSVG:
		write = renderers.SVG()
	case options.FormatPDF:
		write = renderers.PDF()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	var buf bytes.Buffer
	if err := write(&buf, c); err != nil {
		return nil, fmt.Errorf("write %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// grid maps module coordinates onto the canvas. Canvas units are pixels
// and the y axis points up, so rows are flipped.
type grid struct {
	height float64
	dot    float64
	x0, y0 float64
}

// cell returns the bottom-left canvas corner of a module
func (g grid) cell(row, col int) (float64, float64) {
	return g.x0 + float64(col)*g.dot, g.height - g.y0 - float64(row+1)*g.dot
}

func draw(m *matrix, lvl ecLevel, cfg options.RenderConfig, logo image.Image) (*canvas.Canvas, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxDimension || cfg.Height > maxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, cfg.Width, cfg.Height)
	}
	if cfg.Margin < 0 {
		return nil, fmt.Errorf("%w: negative margin %d", ErrInvalidSize, cfg.Margin)
	}
	drawable := min(cfg.Width, cfg.Height) - 2*cfg.Margin
	dot := math.Floor(float64(drawable) / float64(m.size))
	if dot < 1 {
		return nil, fmt.Errorf("%w: %d modules do not fit in %dpx", ErrInvalidSize, m.size, drawable)
	}

	bg, err := parseColor(cfg.BackgroundOptions.Color, "#ffffff")
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	fg, err := parseColor(cfg.DotsOptions.Color, "#000000")
	if err != nil {
		return nil, fmt.Errorf("dots: %w", err)
	}
	ringColor, err := parseColor(cfg.CornersSquareOptions.Color, "")
	if err != nil {
		return nil, fmt.Errorf("corners square: %w", err)
	}
	if cfg.CornersSquareOptions.Color == "" {
		ringColor = fg
	}
	centreColor, err := parseColor(cfg.CornersDotOptions.Color, "")
	if err != nil {
		return nil, fmt.Errorf("corners dot: %w", err)
	}
	if cfg.CornersDotOptions.Color == "" {
		centreColor = fg
	}

	width, height := float64(cfg.Width), float64(cfg.Height)
	side := dot * float64(m.size)
	g := grid{
		height: height,
		dot:    dot,
		x0:     math.Floor((width - side) / 2),
		y0:     math.Floor((height - side) / 2),
	}

	c := canvas.New(width, height)
	ctx := canvas.NewContext(c)
	ctx.SetStrokeColor(canvas.Transparent)

	ctx.SetFillColor(bg)
	ctx.DrawPath(0, 0, canvas.Rectangle(width, height))

	hidden := 0
	if logo != nil {
		hidden = hiddenModules(m.size, lvl, cfg.ImageOptions)
	}
	lo, hi := (m.size-hidden)/2, (m.size+hidden)/2

	ctx.SetFillColor(fg)
	for row := 0; row < m.size; row++ {
		for col := 0; col < m.size; col++ {
			if !m.isDark(row, col) || m.inFinder(row, col) {
				continue
			}
			if hidden > 0 && cfg.ImageOptions.HideBackgroundDots &&
				row >= lo && row < hi && col >= lo && col < hi {
				continue
			}
			n := neighbours{
				top:    m.isDark(row-1, col) && !m.inFinder(row-1, col),
				right:  m.isDark(row, col+1) && !m.inFinder(row, col+1),
				bottom: m.isDark(row+1, col) && !m.inFinder(row+1, col),
				left:   m.isDark(row, col-1) && !m.inFinder(row, col-1),
			}
			x, y := g.cell(row, col)
			ctx.DrawPath(x, y, dotPath(cfg.DotsOptions.Type, dot, n))
		}
	}

	ringStyle := cornerSquareStyle(cfg.CornersSquareOptions.Type, cfg.DotsOptions.Type)
	centreStyle := cornerDotStyle(cfg.CornersDotOptions.Type, cfg.DotsOptions.Type)
	for _, o := range m.finderOrigins() {
		// The ring's bottom-left is the cell in its last row.
		x, y := g.cell(o[0]+finderSize-1, o[1])
		ctx.SetFillColor(ringColor)
		ctx.DrawPath(x, y, cornerSquarePath(ringStyle, dot))
		ctx.SetFillColor(centreColor)
		ctx.DrawPath(x+2*dot, y+2*dot, cornerDotPath(centreStyle, dot))
	}

	if hidden > 0 {
		drawLogo(ctx, g, m.size, hidden, cfg.ImageOptions.Margin, logo)
	}

	return c, nil
}

// hiddenModules returns the side, in modules, of the centred square kept
// for the embedded image. It is capped so the obscured share stays within
// what the error-correction level can recover, and keeps the parity of the
// symbol size so the square stays centred.
func hiddenModules(size int, lvl ecLevel, opts options.ImageOptions) int {
	if opts.ImageSize <= 0 {
		return 0
	}
	relative := math.Min(opts.ImageSize, 1)
	maxHidden := math.Floor(relative * lvl.coverage * float64(size*size))
	side := int(math.Floor(math.Sqrt(maxHidden)))
	if side%2 != size%2 {
		side--
	}
	if side <= 0 {
		return 0
	}
	return side
}

func drawLogo(ctx *canvas.Context, g grid, size, hidden, margin int, logo image.Image) {
	area := float64(hidden)*g.dot - 2*float64(max(margin, 0))
	b := logo.Bounds()
	if area <= 0 || b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	scale := math.Min(area/float64(b.Dx()), area/float64(b.Dy()))
	w, h := float64(b.Dx())*scale, float64(b.Dy())*scale

	side := float64(size) * g.dot
	x := g.x0 + (side-w)/2
	top := g.y0 + (side-h)/2
	// DPMM is source pixels per canvas unit.
	ctx.DrawImage(x, g.height-top-h, logo, canvas.DPMM(1/scale))
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

var namedColors = map[string]string{
	"black":       "#000000",
	"white":       "#ffffff",
	"transparent": "#00000000",
}

// parseColor accepts #rgb, #rgba, #rrggbb, #rrggbbaa and a few names.
// An empty value uses fallback.
func parseColor(value, fallback string) (color.RGBA, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		v = fallback
	}
	if v == "" {
		return color.RGBA{}, nil
	}
	if named, ok := namedColors[strings.ToLower(v)]; ok {
		v = named
	}
	if !hexColor.MatchString(v) {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, value)
	}
	return canvas.Hex(v), nil
}
