package overlay

import (
	"image"
	"image/color"
	"testing"

	"signdetect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayFrame(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x40
	}
	return img
}

func TestToRGBAConvertsEncoding(t *testing.T) {
	src := grayFrame(4, 3)
	out := ToRGBA(src)

	require.Equal(t, src.Bounds(), out.Bounds())
	assert.Equal(t, color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}, out.RGBAAt(1, 1))
}

func TestToRGBACopies(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	out := ToRGBA(src)

	out.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	assert.Equal(t, color.RGBA{}, src.RGBAAt(0, 0))
}

func TestAnnotateDrawsBox(t *testing.T) {
	src := grayFrame(100, 100)
	det := models.Detection{
		ClassID:    14,
		ClassName:  "Stop",
		Confidence: 0.91,
		Box:        models.Box{X1: 20, Y1: 40, X2: 80, Y2: 90},
	}

	out := Annotate(src, []models.Detection{det})
	require.Equal(t, src.Bounds(), out.Bounds())

	background := color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}
	// bottom edge of the box is stroked
	assert.NotEqual(t, background, out.RGBAAt(50, 90))
	// the centre of the box is untouched
	assert.Equal(t, background, out.RGBAAt(50, 65))
	// source frame is not modified
	assert.Equal(t, uint8(0x40), src.GrayAt(50, 90).Y)
}

func TestAnnotateNoDetections(t *testing.T) {
	src := grayFrame(10, 10)
	out := Annotate(src, nil)
	assert.Equal(t, color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}, out.RGBAAt(5, 5))
}

func TestClassColorStable(t *testing.T) {
	a := ClassColor(3)
	b := ClassColor(3)
	assert.Equal(t, a, b)
	assert.NotEqual(t, ClassColor(0), ClassColor(1))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Stop 0.50", Label(models.Detection{ClassName: "Stop", Confidence: 0.5}))
}
