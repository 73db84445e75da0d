package ui

import (
	"image/color"

	"signdetect/internal/session"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// paletteTheme recolors fyne's default theme with the session palette.
// Everything it does not override falls through to the default.
type paletteTheme struct {
	palette session.Palette
	variant fyne.ThemeVariant
}

func newPaletteTheme(p session.Palette) *paletteTheme {
	variant := theme.VariantLight
	if isDark(p.Background) {
		variant = theme.VariantDark
	}
	return &paletteTheme{palette: p, variant: variant}
}

func isDark(c color.NRGBA) bool {
	// Rec. 601 luma
	luma := 299*int(c.R) + 587*int(c.G) + 114*int(c.B)
	return luma < 128*1000
}

func (pt *paletteTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return pt.palette.Background
	case theme.ColorNameForeground:
		return pt.palette.Foreground
	case theme.ColorNameInputBackground, theme.ColorNameMenuBackground, theme.ColorNameOverlayBackground:
		return pt.palette.Panel
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return pt.palette.Accent
	}
	return theme.DefaultTheme().Color(name, pt.variant)
}

func (pt *paletteTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (pt *paletteTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (pt *paletteTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
