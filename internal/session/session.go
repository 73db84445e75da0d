package session

import (
	"image/color"
	"sync"
)

type Theme int

const (
	ThemeLight Theme = iota
	ThemeDark
)

func (t Theme) String() string {
	if t == ThemeDark {
		return "dark"
	}
	return "light"
}

func ParseTheme(s string) Theme {
	if s == "dark" {
		return ThemeDark
	}
	return ThemeLight
}

// Palette is the handful of colors the window repaints on a theme switch.
type Palette struct {
	Background color.NRGBA
	Foreground color.NRGBA
	Panel      color.NRGBA
	Accent     color.NRGBA
}

var palettes = map[Theme]Palette{
	ThemeLight: {
		Background: color.NRGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff},
		Foreground: color.NRGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xff},
		Panel:      color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		Accent:     color.NRGBA{R: 0x19, G: 0x76, B: 0xd2, A: 0xff},
	},
	ThemeDark: {
		Background: color.NRGBA{R: 0x1e, G: 0x1e, B: 0x1e, A: 0xff},
		Foreground: color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff},
		Panel:      color.NRGBA{R: 0x2d, G: 0x2d, B: 0x2d, A: 0xff},
		Accent:     color.NRGBA{R: 0x64, G: 0xb5, B: 0xf6, A: 0xff},
	},
}

func PaletteFor(t Theme) Palette {
	return palettes[t]
}

// State is the per-window session: whether the camera loop runs and which
// theme is shown. It lives for the whole process.
type State struct {
	mu           sync.Mutex
	cameraActive bool
	theme        Theme
}

func New(theme Theme) *State {
	return &State{theme: theme}
}

func (s *State) CameraActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraActive
}

func (s *State) SetCameraActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameraActive = active
}

func (s *State) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

func (s *State) ToggleTheme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.theme == ThemeDark {
		s.theme = ThemeLight
	} else {
		s.theme = ThemeDark
	}
	return s.theme
}

func (s *State) Palette() Palette {
	return PaletteFor(s.Theme())
}
