package cmd

import (
	"github.com/fatih/color"

	"github.com/jswatch/jswatch/internal/extract"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func formatConfidence(c extract.Confidence) string {
	switch c {
	case extract.ConfidenceHigh:
		return colorSuccess(string(c))
	case extract.ConfidenceMedium:
		return colorWarn(string(c))
	default:
		return string(c)
	}
}
