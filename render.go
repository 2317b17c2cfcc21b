// CoverLink - Frame Rendering
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Cover layout geometry.
const (
	coverTextGap  = 4
	artistY       = 8
	titleY        = 28
	maxLabelRunes = 15
	cutLabelRunes = 12
	waitingText   = "Waiting for cover..."
)

// NewFrame returns a blank display frame.
func NewFrame(width, height int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, width, height))
}

// LoadFace opens a TrueType/OpenType font at size points.
func LoadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// LoadFaceOrDefault is LoadFace falling back to the built-in 7x13 face.
func LoadFaceOrDefault(path string, size float64) font.Face {
	face, err := LoadFace(path, size)
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// TextWidth measures s in pixels.
func TextWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// DrawText draws s with its top-left corner at (x, y).
func DrawText(dst draw.Image, face font.Face, x, y int, s string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

// Threshold snaps anti-aliased pixels to black or white in place.
func Threshold(img *image.Gray) {
	for i, p := range img.Pix {
		if p >= 128 {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
}

// Rotate turns img clockwise by the given number of quarter turns.
func Rotate(img *image.Gray, quarters int) *image.Gray {
	quarters = ((quarters % 4) + 4) % 4
	if quarters == 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var out *image.Gray
	if quarters == 2 {
		out = image.NewGray(image.Rect(0, 0, w, h))
	} else {
		out = image.NewGray(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.GrayAt(b.Min.X+x, b.Min.Y+y)
			switch quarters {
			case 1:
				out.SetGray(h-1-y, x, c)
			case 2:
				out.SetGray(w-1-x, h-1-y, c)
			case 3:
				out.SetGray(y, w-1-x, c)
			}
		}
	}
	return out
}

// Renderer composes the cover layout and waiting screens.
type Renderer struct {
	Width     int
	Height    int
	CoverSize int
	Small     font.Face
	Large     font.Face
	Default   font.Face
}

// NewRenderer loads the label fonts, falling back to the built-in face.
func NewRenderer(config DisplayConfig) *Renderer {
	return &Renderer{
		Width:     DisplayWidth,
		Height:    DisplayHeight,
		CoverSize: config.CoverSize,
		Small:     LoadFaceOrDefault(config.FontPath, config.SmallFont),
		Large:     LoadFaceOrDefault(config.FontPath, config.LargeFont),
		Default:   basicfont.Face7x13,
	}
}

// CoverLayout draws the cover on the left and artist/title on the right.
func (r *Renderer) CoverLayout(cover *image.Gray, artist, title string) *image.Gray {
	img := NewFrame(r.Width, r.Height)

	if cover != nil {
		top := (r.Height - r.CoverSize) / 2
		dst := image.Rect(0, top, r.CoverSize, top+r.CoverSize)
		draw.Draw(img, dst, cover, cover.Bounds().Min, draw.Src)
	}

	textX := r.CoverSize + coverTextGap
	if artist != "" {
		DrawText(img, r.Small, textX, artistY, ShortenLabel(artist))
	}
	if title != "" {
		DrawText(img, r.Large, textX, titleY, ShortenLabel(title))
	}

	Threshold(img)
	return img
}

// WaitingScreen is shown while no cover has been received.
func (r *Renderer) WaitingScreen() *image.Gray {
	img := NewFrame(r.Width, r.Height)
	DrawText(img, r.Default, 10, r.Height/2-5, waitingText)
	Threshold(img)
	return img
}

// ShortenLabel cuts labels longer than 15 characters to 12 plus "...".
func ShortenLabel(s string) string {
	runes := []rune(s)
	if len(runes) > maxLabelRunes {
		return string(runes[:cutLabelRunes]) + "..."
	}
	return s
}

var white = color.Gray{Y: 255}
