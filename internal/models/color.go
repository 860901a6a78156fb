package models

import (
	"fmt"
	"strings"
)

// Color is one of the fixed palette values a habit is displayed with.
type Color string

const (
	ColorRed    Color = "red"
	ColorOrange Color = "orange"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorMint   Color = "mint"
	ColorTeal   Color = "teal"
	ColorCyan   Color = "cyan"
	ColorBlue   Color = "blue"
	ColorIndigo Color = "indigo"
	ColorPurple Color = "purple"
	ColorPink   Color = "pink"
)

// Palette lists every supported color in display order.
var Palette = []Color{
	ColorRed, ColorOrange, ColorYellow, ColorGreen, ColorMint, ColorTeal,
	ColorCyan, ColorBlue, ColorIndigo, ColorPurple, ColorPink,
}

func (c Color) Valid() bool {
	for _, p := range Palette {
		if p == c {
			return true
		}
	}
	return false
}

func (c Color) String() string {
	return string(c)
}

// ParseColor resolves a case-insensitive palette name.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown color %q", s)
	}
	return c, nil
}
