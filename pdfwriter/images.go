package pdfwriter

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/wudi/pdfmark/surface"
)

// imageXObject builds an image XObject. JPEG data is embedded as-is with
// DCTDecode; any other decodable format is converted to Flate-compressed
// RGB plus a soft mask when it has transparency.
func imageXObject(data []byte, smaskRef func(*Stream) Ref) (*Stream, error) {
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
		cs := Name("DeviceRGB")
		switch cfg.ColorModel {
		case color.GrayModel:
			cs = "DeviceGray"
		case color.CMYKModel:
			cs = "DeviceCMYK"
		}
		return &Stream{
			Dict: Dict{
				"Type":             Name("XObject"),
				"Subtype":          Name("Image"),
				"Width":            cfg.Width,
				"Height":           cfg.Height,
				"ColorSpace":       cs,
				"BitsPerComponent": 8,
				"Filter":           Name("DCTDecode"),
			},
			Data: data,
		}, nil
	}
	src, _, err := surface.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return fromImage(src, smaskRef)
}

// fromImage converts src to RGB samples, attaching an SMask for alpha.
func fromImage(src image.Image, smaskRef func(*Stream) Ref) (*Stream, error) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		offset := i * 4
		pixels = append(pixels, nrgba.Pix[offset], nrgba.Pix[offset+1], nrgba.Pix[offset+2])
		a := nrgba.Pix[offset+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	rgb, err := deflate(pixels)
	if err != nil {
		return nil, err
	}
	img := &Stream{
		Dict: Dict{
			"Type":             Name("XObject"),
			"Subtype":          Name("Image"),
			"Width":            w,
			"Height":           h,
			"ColorSpace":       Name("DeviceRGB"),
			"BitsPerComponent": 8,
			"Filter":           Name("FlateDecode"),
		},
		Data: rgb,
	}
	if hasAlpha {
		mask, err := deflate(alpha)
		if err != nil {
			return nil, err
		}
		img.Dict["SMask"] = smaskRef(&Stream{
			Dict: Dict{
				"Type":             Name("XObject"),
				"Subtype":          Name("Image"),
				"Width":            w,
				"Height":           h,
				"ColorSpace":       Name("DeviceGray"),
				"BitsPerComponent": 8,
				"Filter":           Name("FlateDecode"),
			},
			Data: mask,
		})
	}
	return img, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return buf.Bytes(), nil
}
