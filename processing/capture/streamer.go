package capture

import (
	"errors"
	"image"
)

var (
	ErrNoVideoStream = errors.New("no video streams found")
	ErrUnknownSource = errors.New("unknown source")
)

// VideoStreamer produces decoded frames. FrameChan is closed at end of
// stream. A read failure is sent once on the buffered ErrorChan before
// FrameChan is closed.
type VideoStreamer interface {
	Start() error
	Stop()
	FrameChan() <-chan image.Image
	ErrorChan() <-chan error
}

// FrameCounter is implemented by streamers that know their length up front.
// Zero means unknown.
type FrameCounter interface {
	TotalFrames() int
}

func TotalFrames(s VideoStreamer) int {
	if fc, ok := s.(FrameCounter); ok {
		return fc.TotalFrames()
	}
	return 0
}
