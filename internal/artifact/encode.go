package artifact

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/stereotrack/stereotrack/internal/camera"
	"github.com/stereotrack/stereotrack/internal/depth"
	"github.com/stereotrack/stereotrack/internal/detector"
)

// boxColor distinguishes the two detector classes so an annotated frame is
// readable at a glance (spec §4.2: class 0 "within range", class 1
// "out-of-range").
var boxColor = map[detector.ClassID]color.RGBA{
	detector.ClassWithinRange: {R: 0, G: 220, B: 0, A: 255},
	detector.ClassOutOfRange:  {R: 220, G: 160, B: 0, A: 255},
}

const defaultBoxColor = 0xff

// annotate draws detection bboxes and a text label over left, returning a
// new image ready for JPEG encoding. left is never mutated.
func annotate(left *camera.Image, detections []detector.Detection, stats []depth.Stats) *image.RGBA {
	rgba := image.NewRGBA(image.Rect(0, 0, left.Width, left.Height))
	draw.Draw(rgba, rgba.Bounds(), &rgbSource{left}, image.Point{}, draw.Src)

	for i, det := range detections {
		c, ok := boxColor[det.ClassID]
		if !ok {
			c = color.RGBA{R: defaultBoxColor, G: defaultBoxColor, B: defaultBoxColor, A: 255}
		}
		drawRect(rgba, det.BBox, c)

		var s depth.Stats
		if i < len(stats) {
			s = stats[i]
		}
		drawLabel(rgba, det, s, c)
	}
	return rgba
}

// rgbSource adapts camera.Image's interleaved RGB bytes to image.Image so
// it can be blitted with image/draw.
type rgbSource struct{ img *camera.Image }

func (s *rgbSource) ColorModel() color.Model { return color.RGBAModel }
func (s *rgbSource) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.img.Width, s.img.Height)
}
func (s *rgbSource) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= s.img.Width || y >= s.img.Height {
		return color.RGBA{}
	}
	i := (y*s.img.Width + x) * 3
	return color.RGBA{R: s.img.Pix[i], G: s.img.Pix[i+1], B: s.img.Pix[i+2], A: 255}
}

// drawRect draws a 2px unfilled rectangle border, clipped to img's bounds.
func drawRect(img *image.RGBA, b detector.BBox, c color.RGBA) {
	bounds := img.Bounds()
	x1, y1, x2, y2 := clampRect(b, bounds.Dx(), bounds.Dy())
	if x2 <= x1 || y2 <= y1 {
		return
	}
	const thickness = 2
	for x := x1; x < x2; x++ {
		for t := 0; t < thickness; t++ {
			setIfInBounds(img, x, y1+t, c)
			setIfInBounds(img, x, y2-1-t, c)
		}
	}
	for y := y1; y < y2; y++ {
		for t := 0; t < thickness; t++ {
			setIfInBounds(img, x1+t, y, c)
			setIfInBounds(img, x2-1-t, y, c)
		}
	}
}

// labelText formats a detection's overlay text per spec §6: "C:<conf:.2f>
// D:<mean:.2f>m" when depth stats are available, "C:<conf:.2f> D:--"
// otherwise.
func labelText(det detector.Detection, s depth.Stats) string {
	if s.HasDepth() {
		return fmt.Sprintf("C:%.2f D:%.2fm", det.Confidence, s.Mean)
	}
	return fmt.Sprintf("C:%.2f D:--", det.Confidence)
}

// drawLabel renders labelText above the bbox using the fixed 7x13 bitmap
// face (golang.org/x/image/font), clipped so it never writes outside the
// frame even when the box sits at the top edge.
func drawLabel(img *image.RGBA, det detector.Detection, s depth.Stats, c color.RGBA) {
	x1, y1, _, _ := clampRect(det.BBox, img.Bounds().Dx(), img.Bounds().Dy())
	baseline := y1 - 3
	if baseline < basicfont.Face7x13.Height {
		baseline = basicfont.Face7x13.Height
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x1, baseline),
	}
	d.DrawString(labelText(det, s))
}

func setIfInBounds(img *image.RGBA, x, y int, c color.RGBA) {
	b := img.Bounds()
	if x < 0 || y < 0 || x >= b.Dx() || y >= b.Dy() {
		return
	}
	img.SetRGBA(x, y, c)
}

func clampRect(b detector.BBox, w, h int) (int, int, int, int) {
	x1 := max(0, b.X1)
	y1 := max(0, b.Y1)
	x2 := min(w, b.X2)
	y2 := min(h, b.Y2)
	return x1, y1, x2, y2
}
