package fonts

import (
	"bytes"
	"fmt"
	"unicode"

	"github.com/go-text/typesetting/di"
	gtfont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

var shaped = map[string]*gtfont.Face{}

func shapingFace(family string) (*gtfont.Face, error) {
	key, data := program(family)
	if f, ok := shaped[key]; ok {
		return f, nil
	}
	face, err := gtfont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse font %q for shaping: %w", family, err)
	}
	shaped[key] = face
	return face, nil
}

// Measure returns the shaped advance width of a single line of text in
// pixels at the given size.
func Measure(text, family string, size float64) (float64, error) {
	if text == "" {
		return 0, nil
	}
	mu.Lock()
	defer mu.Unlock()
	face, err := shapingFace(family)
	if err != nil {
		return 0, err
	}
	runes := []rune(text)
	script := detectScript(runes)
	out := (&shaping.HarfbuzzShaper{}).Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      face,
		Size:      fixed.Int26_6(size * 64),
		Script:    script,
		Language:  language.DefaultLanguage(),
	})
	adv := out.Advance
	if adv < 0 {
		adv = -adv
	}
	return float64(adv) / 64, nil
}

// LineHeight returns the recommended line height for family at size pixels.
func LineHeight(family string, size float64) (float64, error) {
	face, err := Face(family, size)
	if err != nil {
		return 0, err
	}
	return float64(face.Metrics().Height) / 64, nil
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		switch {
		case unicode.Is(unicode.Arabic, r):
			return language.Arabic
		case unicode.Is(unicode.Hebrew, r):
			return language.Hebrew
		case unicode.Is(unicode.Cyrillic, r):
			return language.Cyrillic
		case unicode.Is(unicode.Greek, r):
			return language.Greek
		case unicode.Is(unicode.Latin, r):
			return language.Latin
		}
	}
	return language.Latin
}
