package capture

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

func IsImagePath(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// ImageStreamer yields a single decoded still image.
type ImageStreamer struct {
	path      string
	frameChan chan image.Image
	errChan   chan error
}

func NewImageStreamer(path string) *ImageStreamer {
	return &ImageStreamer{
		path:      path,
		frameChan: make(chan image.Image, 1),
		errChan:   make(chan error),
	}
}

func DecodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	return img, nil
}

func (is *ImageStreamer) Start() error {
	img, err := DecodeImage(is.path)
	if err != nil {
		return err
	}

	is.frameChan <- img
	close(is.frameChan)
	close(is.errChan)
	return nil
}

func (is *ImageStreamer) Stop() {}

func (is *ImageStreamer) FrameChan() <-chan image.Image { return is.frameChan }
func (is *ImageStreamer) ErrorChan() <-chan error       { return is.errChan }
func (is *ImageStreamer) TotalFrames() int              { return 1 }
