package charts

// Price line chart for /chart and the daily summary
// Draws the in-memory history window with gg, black background like the volume chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ticker-bot/internal/features/ticker"
	"ticker-bot/internal/features/tracker"
	logging "ticker-bot/internal/infra/log"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
)

const (
	chartWidth  = 1200
	chartHeight = 675

	chartAreaLeft   = 140.0
	chartAreaRight  = 1140.0
	chartAreaTop    = 170.0
	chartAreaBottom = 590.0

	gridLinesCount = 4

	titleFontSize = 44.0
	valueFontSize = 30.0
	labelFontSize = 20.0
)

var (
	colorGrid  = color.RGBA{60, 60, 60, 255}
	colorLine  = color.RGBA{52, 152, 219, 255}
	colorLabel = color.RGBA{170, 170, 170, 255}
)

var ErrNotEnoughPoints = errors.New("not enough price history")

var fontPaths = []string{
	"etc/fonts/InterVariable.ttf",
	"etc/fonts/Inter-Regular.ttf",
	"./etc/fonts/Inter-Regular.ttf",
	"~/Library/Fonts/Inter-Regular.ttf",
	"/Library/Fonts/Inter-Regular.ttf",
	"/usr/share/fonts/truetype/inter/Inter-Regular.ttf",
	"/usr/local/share/fonts/Inter-Regular.ttf",
	"/System/Library/Fonts/Supplemental/Arial.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
}

var (
	fontOnce sync.Once
	fontPath string
)

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[1:])
		}
	}
	return path
}

// findFont returns the first usable font file, or "" for gg's built-in face.
func findFont() string {
	fontOnce.Do(func() {
		for _, p := range fontPaths {
			expanded := expandPath(p)
			if _, err := os.Stat(expanded); err == nil {
				if _, err := gg.LoadFontFace(expanded, labelFontSize); err == nil {
					fontPath = expanded
					logging.LogDebug("Chart font loaded", zap.String("path", expanded))
					return
				}
			}
		}
		logging.LogWarn("No chart font found, using default face", zap.Int("paths_checked", len(fontPaths)))
	})
	return fontPath
}

func setFont(dc *gg.Context, size float64) {
	if p := findFont(); p != "" {
		_ = dc.LoadFontFace(p, size)
	}
}

// RenderPriceChart writes a PNG of points to w. At least two points are required.
func RenderPriceChart(w io.Writer, symbol string, points []tracker.Point) error {
	if len(points) < 2 {
		return fmt.Errorf("%w for %s (%d points)", ErrNotEnoughPoints, symbol, len(points))
	}

	minPrice, maxPrice := points[0].Price, points[0].Price
	for _, p := range points {
		minPrice = min(minPrice, p.Price)
		maxPrice = max(maxPrice, p.Price)
	}
	if maxPrice == minPrice {
		pad := maxPrice * 0.01
		if pad == 0 {
			pad = 1
		}
		minPrice -= pad
		maxPrice += pad
	}

	first, last := points[0], points[len(points)-1]
	change := 0.0
	if first.Price != 0 {
		change = (last.Price - first.Price) / first.Price * 100
	}
	trend := ticker.TrendOf(last.Price, first.Price)

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetColor(color.Black)
	dc.Clear()

	// header
	setFont(dc, titleFontSize)
	dc.SetColor(color.White)
	dc.DrawString(symbol, chartAreaLeft, 80)

	setFont(dc, valueFontSize)
	dc.DrawString("$"+ticker.FormatPrice(last.Price, 4), chartAreaLeft, 130)
	dc.SetColor(hexColor(trend.Color()))
	dc.DrawStringAnchored(fmt.Sprintf("%+.2f%%", change), chartAreaRight, 130, 1, 0)

	// grid + y labels
	setFont(dc, labelFontSize)
	areaHeight := chartAreaBottom - chartAreaTop
	areaWidth := chartAreaRight - chartAreaLeft
	dc.SetLineWidth(1)
	for i := 0; i <= gridLinesCount; i++ {
		frac := float64(i) / gridLinesCount
		y := chartAreaBottom - frac*areaHeight
		dc.SetColor(colorGrid)
		dc.DrawLine(chartAreaLeft, y, chartAreaRight, y)
		dc.Stroke()

		value := minPrice + frac*(maxPrice-minPrice)
		dc.SetColor(colorLabel)
		dc.DrawStringAnchored(ticker.FormatPrice(value, 4), chartAreaLeft-12, y, 1, 0.5)
	}

	// price line
	span := last.At.Sub(first.At).Seconds()
	if span <= 0 {
		span = 1
	}
	dc.SetColor(colorLine)
	dc.SetLineWidth(3)
	for i, p := range points {
		x := chartAreaLeft + p.At.Sub(first.At).Seconds()/span*areaWidth
		y := chartAreaBottom - (p.Price-minPrice)/(maxPrice-minPrice)*areaHeight
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()

	// time labels
	dc.SetColor(colorLabel)
	dc.DrawStringAnchored(first.At.UTC().Format("Jan 02 15:04"), chartAreaLeft, chartAreaBottom+35, 0, 0)
	dc.DrawStringAnchored(last.At.UTC().Format("Jan 02 15:04 UTC"), chartAreaRight, chartAreaBottom+35, 1, 0)

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	return nil
}

// PriceChartPNG renders into memory for uploads.
func PriceChartPNG(symbol string, points []tracker.Point) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPriceChart(&buf, symbol, points); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("chart is empty after rendering")
	}
	return buf.Bytes(), nil
}

// SavePriceChart writes <dir>/<symbol>_chart.png and returns the path.
func SavePriceChart(dir, symbol string, points []tracker.Point) (string, error) {
	data, err := PriceChartPNG(symbol, points)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create charts directory: %w", err)
	}
	filename := filepath.Join(dir, strings.ToLower(symbol)+"_chart.png")
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save chart: %w", err)
	}

	logging.LogInfo("Price chart generated",
		zap.String("filename", filename),
		zap.Int("points", len(points)),
		zap.Int("bytes", len(data)))
	return filename, nil
}

func hexColor(c int) color.Color {
	return color.RGBA{uint8(c >> 16), uint8(c >> 8), uint8(c), 255}
}
