package capture

import (
	"fmt"

	"signdetect/internal/config"
)

type SourceType string

const (
	SourceImage  SourceType = "Image"
	SourceVideo  SourceType = "Video"
	SourceCamera SourceType = "Web-Camera"
)

// SourceFor classifies a picked file by extension.
func SourceFor(path string) SourceType {
	if IsImagePath(path) {
		return SourceImage
	}
	return SourceVideo
}

// NewStreamer builds an unstarted streamer. For cameras target is the
// device name, otherwise a file path.
func NewStreamer(cfg *config.Config, source SourceType, target string) (VideoStreamer, error) {
	switch source {
	case SourceImage:
		return NewImageStreamer(target), nil
	case SourceVideo:
		return NewLocalStreamer(target, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight())
	case SourceCamera:
		return NewFFmpegWebcam(target, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
}
