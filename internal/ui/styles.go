package ui

import (
	"fmt"
	"strings"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorPass   = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderPass returns s in green.
func RenderPass(s string) string { return paint(colorPass, s) }

// RenderWarn returns s in amber.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderFail returns s in red.
func RenderFail(s string) string { return paint(colorFail, s) }

// RenderStatus colors a certificate or dispatch status word.
func RenderStatus(status string) string {
	switch status {
	case "completed", "success":
		return RenderPass(status)
	case "sending":
		return RenderWarn(status)
	case "error":
		return RenderFail(status)
	default:
		return status
	}
}

// RenderAssessment colors an overall assessment.
func RenderAssessment(a string) string {
	switch a {
	case "satisfactory":
		return RenderPass(a)
	case "unsatisfactory":
		return RenderFail(a)
	default:
		return RenderMuted(a)
	}
}

// ProgressBar draws a fixed-width completion bar such as "[######----] 60%".
// Percentages outside 0..100 are clamped.
func ProgressBar(percent, width int) string {
	percent = max(0, min(100, percent))
	if width < 1 {
		width = 1
	}
	filled := percent * width / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	color := colorWarn
	if percent == 100 {
		color = colorPass
	}
	return fmt.Sprintf("[%s] %d%%", paint(color, bar), percent)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
