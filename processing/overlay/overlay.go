package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"signdetect/internal/models"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/muesli/gamut"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	lineWidth = 3
	fontSize  = 14
	padding   = 3
	// degrees between consecutive class colors
	hueStep = 53
)

var (
	font      *truetype.Font
	baseColor = color.RGBA{R: 0, G: 200, B: 0, A: 255}

	colorsMu sync.Mutex
	colors   = map[int]color.Color{}
)

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// ClassColor is stable for a given class id.
func ClassColor(classID int) color.Color {
	colorsMu.Lock()
	defer colorsMu.Unlock()

	if c, ok := colors[classID]; ok {
		return c
	}

	c := gamut.HueOffset(baseColor, (classID*hueStep)%360)
	colors[classID] = c
	return c
}

func Label(d models.Detection) string {
	return fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
}

// ToRGBA returns img in the RGBA encoding the display expects. Frames
// already in that encoding are copied so the caller may draw on the result.
func ToRGBA(img image.Image) *image.RGBA {
	return gg.NewContextForImage(img).Image().(*image.RGBA)
}

// Annotate returns an RGBA copy of img with a box and a label per detection.
func Annotate(img image.Image, dets []models.Detection) *image.RGBA {
	if len(dets) == 0 {
		return ToRGBA(img)
	}

	dc := gg.NewContextForImage(img)

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: fontSize}))
	origin := img.Bounds().Min

	for _, d := range dets {
		col := ClassColor(d.ClassID)
		x := d.Box.X1 - float64(origin.X)
		y := d.Box.Y1 - float64(origin.Y)

		dc.SetColor(col)
		dc.SetLineWidth(lineWidth)
		dc.DrawRectangle(x, y, d.Box.Width(), d.Box.Height())
		dc.Stroke()

		text := Label(d)
		tw, th := dc.MeasureString(text)

		// above the box, or inside it when the box touches the top edge
		ty := y - th - 2*padding
		if ty < 0 {
			ty = y
		}

		dc.SetColor(col)
		dc.DrawRectangle(x, ty, tw+2*padding, th+2*padding)
		dc.Fill()

		dc.SetColor(color.White)
		dc.DrawStringAnchored(text, x+padding, ty+padding, 0, 1)
	}

	return dc.Image().(*image.RGBA)
}
