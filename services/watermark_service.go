package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultWatermarkText    = "PREVIEW"
	defaultWatermarkOpacity = 0.35
	watermarkScale          = 4 // stamp upscale factor so the text reads at photo resolutions
)

// WatermarkService composites a repeating text overlay onto preview images.
// The preview endpoint is the only raster path customers can reach without a
// download token, so everything that leaves it goes through Apply.
type WatermarkService struct {
	text    string
	opacity float64
}

// NewWatermarkService creates a watermark service with the given overlay text
func NewWatermarkService(text string) *WatermarkService {
	if text == "" {
		text = defaultWatermarkText
	}
	return &WatermarkService{
		text:    text,
		opacity: defaultWatermarkOpacity,
	}
}

// Apply decodes the image, tiles the watermark stamp across it and re-encodes
// as JPEG. The source bytes are never returned unmodified.
func (s *WatermarkService) Apply(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("watermark: failed to decode image: %w", err)
	}

	stamp := s.renderStamp()
	bounds := src.Bounds()
	out := imaging.Clone(src)

	stepX := stamp.Bounds().Dx() * 2
	stepY := stamp.Bounds().Dy() * 3
	row := 0
	for y := 0; y < bounds.Dy(); y += stepY {
		// Offset every other row so crops can't dodge the overlay
		offset := 0
		if row%2 == 1 {
			offset = -stamp.Bounds().Dx()
		}
		for x := offset; x < bounds.Dx(); x += stepX {
			out = imaging.Overlay(out, stamp, image.Pt(x, y), s.opacity)
		}
		row++
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(82)); err != nil {
		return nil, fmt.Errorf("watermark: failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// renderStamp draws the watermark text once, upscaled for legibility
func (s *WatermarkService) renderStamp() image.Image {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s.text).Ceil()
	height := face.Metrics().Height.Ceil()

	stamp := image.NewRGBA(image.Rect(0, 0, width+8, height+6))
	draw.Draw(stamp, stamp.Bounds(), image.Transparent, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  stamp,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot:  fixed.P(4, face.Metrics().Ascent.Ceil()+3),
	}
	drawer.DrawString(s.text)

	scaled := imaging.Resize(stamp, stamp.Bounds().Dx()*watermarkScale, 0, imaging.NearestNeighbor)
	return imaging.Rotate(scaled, 30, color.Transparent)
}
