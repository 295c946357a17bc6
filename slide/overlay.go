package slide

import (
	"fmt"
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// OverlayRenderer draws the detected tissue regions over the slide's
// detection-level footprint, as a debugging aid when tuning detection
// parameters. Regions are filled translucently and outlined.
type OverlayRenderer struct {
	Fill        color.RGBA
	Stroke      color.RGBA
	StrokeWidth float64
	Background  color.RGBA
	Resolution  canvas.Resolution
}

// NewOverlayRenderer creates a renderer with the default palette.
func NewOverlayRenderer() *OverlayRenderer {
	return &OverlayRenderer{
		Fill:        color.RGBA{R: 88, G: 136, B: 48, A: 110},
		Stroke:      color.RGBA{R: 24, G: 80, B: 16, A: 255},
		StrokeWidth: 2.0,
		Background:  color.RGBA{R: 245, G: 245, B: 245, A: 255},
		Resolution:  canvas.DPI(150),
	}
}

// canvasRenderer is the shared surface of the svg and rasterizer
// renderers.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the overlay as an SVG. Regions are given in level-0
// coordinates; scale maps them onto the output (use 1 / 2^detectionLevel
// to draw at detection-level size). width and height are the output
// dimensions in canvas units.
func (r *OverlayRenderer) RenderSVG(w io.Writer, regions []Region, width, height, scale float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid overlay dimensions %gx%g", width, height)
	}
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, regions, width, height, scale)
	return svgRenderer.Close()
}

// RenderPNG writes the overlay as a PNG.
func (r *OverlayRenderer) RenderPNG(w io.Writer, regions []Region, width, height, scale float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid overlay dimensions %gx%g", width, height)
	}
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, regions, width, height, scale)
	return png.Encode(w, rast)
}

func (r *OverlayRenderer) renderToCanvas(renderer canvasRenderer, regions []Region, width, height, scale float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: r.Background}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: r.Fill}
	style.Stroke = canvas.Paint{Color: r.Stroke}
	style.StrokeWidth = r.StrokeWidth

	for _, region := range regions {
		for _, poly := range region.Polygons() {
			for _, ring := range poly {
				if len(ring) < 2 {
					continue
				}
				cp := &canvas.Path{}
				for i, pt := range ring {
					// Canvas y grows upwards; image y grows downwards.
					cx := pt[0] * scale
					cy := height - pt[1]*scale
					if i == 0 {
						cp.MoveTo(cx, cy)
					} else {
						cp.LineTo(cx, cy)
					}
				}
				cp.Close()
				renderer.RenderPath(cp, style, canvas.Identity)
			}
		}
	}
}
