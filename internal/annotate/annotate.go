// Package annotate draws PPE detections and recognised identities onto a
// frame and encodes the result as JPEG.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
)

const (
	DefaultQuality = 80
	boxThickness   = 2
)

var captionColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// LabelColors is the per-label box colour.
var LabelColors = map[string]color.RGBA{
	"person":      rgb(255, 255, 255),
	"ear":         rgb(150, 150, 150),
	"ear-muffs":   rgb(255, 165, 0),
	"face":        rgb(200, 200, 200),
	"face-guard":  rgb(0, 255, 255),
	"face-mask":   rgb(135, 206, 235),
	"foot":        rgb(165, 42, 42),
	"tool":        rgb(255, 0, 255),
	"glasses":     rgb(0, 0, 255),
	"gloves":      rgb(50, 205, 50),
	"helmet":      rgb(0, 255, 0),
	"hands":       rgb(255, 215, 189),
	"head":        rgb(255, 192, 203),
	"coverall":    rgb(255, 0, 0),
	"shoes":       rgb(255, 255, 0),
	"safety-vest": rgb(255, 215, 0),
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// LabelColor returns the colour for label, black when unknown.
func LabelColor(label string) color.RGBA {
	if c, ok := LabelColors[label]; ok {
		return c
	}
	return rgb(0, 0, 0)
}

type Annotator struct {
	quality int
}

func New(quality int) *Annotator {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Annotator{quality: quality}
}

// Annotate draws onto a copy of img; the input is left untouched.
func (a *Annotator) Annotate(img image.Image, detections []models.Detection, faces []models.Face) ([]byte, error) {
	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)

	for _, d := range detections {
		c := LabelColor(d.Label)
		drawBox(canvas, d.BBox, c)
		drawText(canvas, int(d.BBox[0]), int(d.BBox[1])-4, d.Label, c)
	}
	for _, f := range faces {
		if f.Identity == nil {
			continue
		}
		drawText(canvas, int(f.BBox[0]), int(f.BBox[1])-4, f.Identity.Caption(), captionColor)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: a.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBox(dst *image.RGBA, box [4]float32, c color.RGBA) {
	r := image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])).Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawText writes s with its baseline at y, pushed inside the frame when the
// box touches the top edge.
func drawText(dst *image.RGBA, x, y int, s string, c color.RGBA) {
	face := basicfont.Face7x13
	if y < face.Ascent {
		y = face.Ascent
	}
	if x < 0 {
		x = 0
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
