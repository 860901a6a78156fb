package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/utils"
)

var paletteColors = map[models.Color]lipgloss.Color{
	models.ColorRed:    lipgloss.Color("196"),
	models.ColorOrange: lipgloss.Color("208"),
	models.ColorYellow: lipgloss.Color("220"),
	models.ColorGreen:  lipgloss.Color("40"),
	models.ColorMint:   lipgloss.Color("121"),
	models.ColorTeal:   lipgloss.Color("30"),
	models.ColorCyan:   lipgloss.Color("51"),
	models.ColorBlue:   lipgloss.Color("33"),
	models.ColorIndigo: lipgloss.Color("63"),
	models.ColorPurple: lipgloss.Color("129"),
	models.ColorPink:   lipgloss.Color("205"),
}

var (
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
)

// ColorStyle returns the foreground style for a palette color.
func ColorStyle(c models.Color) lipgloss.Style {
	color, ok := paletteColors[c]
	if !ok {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}

func Header(s string) string { return headerStyle.Render(s) }

func Muted(s string) string { return mutedStyle.Render(s) }

func Warning(s string) string { return warningStyle.Render(s) }

// ProgressBar draws completed/total as a fixed-width bar.
func ProgressBar(p models.Progress, width int) string {
	if p.Total <= 0 || width <= 0 {
		return ""
	}
	filled := p.Completed * width / p.Total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// HabitLine is the one-line summary used by list output.
func HabitLine(h *models.Habit, today time.Time) string {
	p := h.Progress(today)
	name := ColorStyle(h.Color).Render(h.Name)
	return fmt.Sprintf("%s %s %d/%d %s", name, ProgressBar(p, 10), p.Completed, p.Total, Muted(string(h.State(today))))
}

// DayMark renders one scheduled day for habit show.
func DayMark(d models.Day, today time.Time) string {
	date := utils.FormatDate(d.Date)
	switch {
	case d.Executed:
		return "[x] " + date
	case d.Date.Before(today):
		return Muted("[ ] " + date)
	case utils.SameDay(d.Date, today):
		return "[ ] " + date + " (today)"
	default:
		return Muted("    " + date)
	}
}
