package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
)

// ErrInvalidECLevel is returned for error-correction levels other than L, M, Q, H
var ErrInvalidECLevel = errors.New("invalid error correction level")

// finderSize is the side of a finder pattern in modules
const finderSize = 7

// ecLevel pairs the go-qrcode recovery level with the share of the symbol
// that can be obscured and still decode.
type ecLevel struct {
	recovery qrcode.RecoveryLevel
	coverage float64
}

var ecLevels = map[string]ecLevel{
	"L": {qrcode.Low, 0.07},
	"M": {qrcode.Medium, 0.15},
	"Q": {qrcode.High, 0.25},
	"H": {qrcode.Highest, 0.30},
}

func lookupECLevel(name string) (ecLevel, error) {
	if name == "" {
		name = "Q"
	}
	lvl, ok := ecLevels[strings.ToUpper(name)]
	if !ok {
		return ecLevel{}, fmt.Errorf("%w: %q", ErrInvalidECLevel, name)
	}
	return lvl, nil
}

// matrix is the module grid of an encoded symbol without quiet zone
type matrix struct {
	size int
	dark [][]bool
}

func newMatrix(data string, opts options.QROptions) (*matrix, ecLevel, error) {
	lvl, err := lookupECLevel(opts.ErrorCorrectionLevel)
	if err != nil {
		return nil, ecLevel{}, err
	}

	var q *qrcode.QRCode
	switch {
	case opts.TypeNumber == 0:
		q, err = qrcode.New(data, lvl.recovery)
	case opts.TypeNumber >= 1 && opts.TypeNumber <= 40:
		q, err = qrcode.NewWithForcedVersion(data, opts.TypeNumber, lvl.recovery)
	default:
		return nil, ecLevel{}, fmt.Errorf("invalid type number %d", opts.TypeNumber)
	}
	if err != nil {
		return nil, ecLevel{}, fmt.Errorf("encode qr: %w", err)
	}
	q.DisableBorder = true

	bitmap := q.Bitmap()
	return &matrix{size: len(bitmap), dark: bitmap}, lvl, nil
}

func (m *matrix) isDark(row, col int) bool {
	if row < 0 || col < 0 || row >= m.size || col >= m.size {
		return false
	}
	return m.dark[row][col]
}

// inFinder reports whether a module belongs to one of the three finder patterns
func (m *matrix) inFinder(row, col int) bool {
	top := row < finderSize
	left := col < finderSize
	right := col >= m.size-finderSize
	bottom := row >= m.size-finderSize
	return (top && left) || (top && right) || (bottom && left)
}

// finderOrigins returns the top-left module of each finder pattern
func (m *matrix) finderOrigins() [][2]int {
	far := m.size - finderSize
	return [][2]int{{0, 0}, {0, far}, {far, 0}}
}
