// Package fonts resolves the font families offered for text annotations to
// embedded Go font programs, builds drawing faces for the flattening
// rasterizer and measures text with HarfBuzz shaping.
package fonts

import (
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
)

// DefaultFamily is used for new text objects until the user picks another.
const DefaultFamily = "Arial"

// Families lists the family names the editor offers, in menu order.
var Families = []string{
	"Arial",
	"Times New Roman",
	"Courier New",
	"Georgia",
	"Verdana",
	"Comic Sans MS",
}

// program returns the name and TrueType bytes of the Go font standing in
// for a family. Unknown families fall back to the regular sans face.
func program(family string) (string, []byte) {
	switch strings.ToLower(strings.TrimSpace(family)) {
	case "courier new", "courier", "monospace":
		return "gomono", gomono.TTF
	case "times new roman", "times", "serif":
		return "goitalic", goitalic.TTF
	case "georgia":
		return "gosmallcaps", gosmallcaps.TTF
	case "verdana":
		return "gomedium", gomedium.TTF
	case "comic sans ms", "impact":
		return "gobold", gobold.TTF
	default:
		return "goregular", goregular.TTF
	}
}

// Known reports whether family is one of Families (case-insensitive).
func Known(family string) bool {
	for _, f := range Families {
		if strings.EqualFold(f, family) {
			return true
		}
	}
	return false
}
