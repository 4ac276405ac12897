// Package tools turns pointer input into annotation-surface mutations
// according to the active tool.
package tools

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/wudi/pdfmark/fonts"
)

// Tool is an editing mode.
type Tool int

const (
	ToolSelect Tool = iota
	ToolPen
	ToolLine
	ToolHighlighter
	ToolText
	ToolImage
	ToolEraser
)

var toolNames = [...]string{
	ToolSelect:      "select",
	ToolPen:         "pen",
	ToolLine:        "line",
	ToolHighlighter: "highlighter",
	ToolText:        "text",
	ToolImage:       "image",
	ToolEraser:      "eraser",
}

func (t Tool) String() string {
	if t >= 0 && int(t) < len(toolNames) {
		return toolNames[t]
	}
	return fmt.Sprintf("Tool(%d)", int(t))
}

// ParseTool maps a tool name to its Tool.
func ParseTool(name string) (Tool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range toolNames {
		if n == name {
			return Tool(i), nil
		}
	}
	return ToolSelect, fmt.Errorf("unknown tool %q", name)
}

// Defaults for a fresh session.
const (
	DefaultStrokeWidth = 2
	DefaultTextSize    = 20
	DefaultText        = "Type here"
	ImageScale         = 0.5
)

// State is the interaction context handed to every pointer handler. It is
// a value: changing a setting produces a new State.
type State struct {
	Tool        Tool
	Color       color.NRGBA
	StrokeWidth float64
	FontFamily  string
}

// DefaultState is select mode with black 2px ink in the default family.
func DefaultState() State {
	return State{
		Tool:        ToolSelect,
		Color:       color.NRGBA{A: 255},
		StrokeWidth: DefaultStrokeWidth,
		FontFamily:  fonts.DefaultFamily,
	}
}

func (s State) WithTool(t Tool) State           { s.Tool = t; return s }
func (s State) WithColor(c color.NRGBA) State   { s.Color = c; return s }
func (s State) WithStrokeWidth(w float64) State { s.StrokeWidth = w; return s }
func (s State) WithFontFamily(f string) State   { s.FontFamily = f; return s }
