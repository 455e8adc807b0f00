package diagnostics

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/sandrolain/gorigami/pkg/types"
)

// Format renders err for a terminal: a header with the error code, the
// source location, the failing line with the expression underlined and, when
// available, an explanation with suggestions.
func Format(err error, useColor bool) string {
	return FormatContext(context.Background(), err, useColor)
}

// FormatContext is like Format but uses ctx to list scope keys.
func FormatContext(ctx context.Context, err error, useColor bool) string {
	if err == nil {
		return ""
	}
	header := painter(useColor, color.FgRed, color.Bold)
	arrow := painter(useColor, color.FgBlue, color.Bold)
	note := painter(useColor, color.FgCyan)

	var sb strings.Builder
	e, ok := types.AsError(err)
	if !ok {
		sb.WriteString(header.Sprint("error"))
		sb.WriteString(": ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(header.Sprintf("error[%s]", e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if loc := e.Location; loc != nil {
		sb.WriteString(arrow.Sprint("  --> "))
		sb.WriteString(loc.String())
		sb.WriteString("\n")
		writeSnippet(&sb, loc, header)
	}

	if explanation, ok := Explain(ctx, err); ok {
		for _, line := range strings.Split(explanation, "\n") {
			sb.WriteString(note.Sprint("   = "))
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func writeSnippet(sb *strings.Builder, loc *types.Location, caret *color.Color) {
	if loc.Source == nil {
		return
	}
	line := loc.Source.Line(loc.Start.Line)
	if line == "" {
		return
	}
	lineNum := fmt.Sprintf("%d", loc.Start.Line)
	padding := strings.Repeat(" ", len(lineNum)+1)

	length := len(line) - (loc.Start.Column - 1)
	if loc.End.Line == loc.Start.Line {
		length = loc.End.Column - loc.Start.Column
	}
	if length < 1 {
		length = 1
	}

	sb.WriteString(padding + "|\n")
	sb.WriteString(lineNum + " | " + line + "\n")
	sb.WriteString(padding + "| ")
	sb.WriteString(strings.Repeat(" ", loc.Start.Column-1))
	sb.WriteString(caret.Sprint(strings.Repeat("^", length)))
	sb.WriteString("\n")
}

func painter(enabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
