package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
)

func printSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", styleIconSuccess.Render("✓"), fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", styleIconError.Render("✗"), fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", styleIconWarning.Render("!"), fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", styleIconInfo.Render("•"), fmt.Sprintf(format, args...))
}

func printDetail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s\n", StyleDim.Render(fmt.Sprintf(format, args...)))
}
