package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToggleThemeTwiceRestoresPalette(t *testing.T) {
	for _, start := range []Theme{ThemeLight, ThemeDark} {
		t.Run(start.String(), func(t *testing.T) {
			s := New(start)
			before := s.Palette()

			first := s.ToggleTheme()
			assert.NotEqual(t, start, first)
			assert.NotEqual(t, before, s.Palette())

			second := s.ToggleTheme()
			assert.Equal(t, start, second)
			assert.Equal(t, before, s.Palette())
		})
	}
}

func TestPalettesDifferInEveryColor(t *testing.T) {
	light, dark := PaletteFor(ThemeLight), PaletteFor(ThemeDark)

	assert.NotEqual(t, light.Background, dark.Background)
	assert.NotEqual(t, light.Foreground, dark.Foreground)
	assert.NotEqual(t, light.Panel, dark.Panel)
	assert.NotEqual(t, light.Accent, dark.Accent)
}

func TestParseTheme(t *testing.T) {
	assert.Equal(t, ThemeDark, ParseTheme("dark"))
	assert.Equal(t, ThemeLight, ParseTheme("light"))
	assert.Equal(t, ThemeLight, ParseTheme(""))
	assert.Equal(t, "dark", ThemeDark.String())
}

func TestCameraActive(t *testing.T) {
	s := New(ThemeLight)
	assert.False(t, s.CameraActive())

	s.SetCameraActive(true)
	assert.True(t, s.CameraActive())

	s.SetCameraActive(false)
	assert.False(t, s.CameraActive())
}
