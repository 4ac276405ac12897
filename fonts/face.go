package fonts

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

type faceKey struct {
	family string
	size   float64
}

var (
	mu     sync.Mutex
	parsed = map[string]*opentype.Font{}
	faces  = map[faceKey]font.Face{}
)

func parseFamily(family string) (*opentype.Font, error) {
	key, data := program(family)
	if f, ok := parsed[key]; ok {
		return f, nil
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %q: %w", family, err)
	}
	parsed[key] = f
	return f, nil
}

// Face returns a cached drawing face for family at size pixels. Faces are
// built at 72 DPI so that size is in pixels.
func Face(family string, size float64) (font.Face, error) {
	if size <= 0 {
		return nil, fmt.Errorf("font size must be positive, got %v", size)
	}
	mu.Lock()
	defer mu.Unlock()
	key := faceKey{family: family, size: size}
	if f, ok := faces[key]; ok {
		return f, nil
	}
	otf, err := parseFamily(family)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(otf, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("new face %q@%v: %w", family, size, err)
	}
	faces[key] = face
	return face, nil
}
