// CoverLink - Cover Art Conversion
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // shairport-sync publishes JPEG covers
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var monochrome = color.Palette{color.Black, color.White}

// ConvertCover decodes a cover image and reduces it to a size x size, 1-bit
// picture: grayscale, center-cropped to a square, resampled, then
// Floyd-Steinberg dithered. Pixels of the result are either 0 or 255.
func ConvertCover(payload []byte, size int) (*image.Gray, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: cover size %d", ErrInvalidConfiguration, size)
	}

	src, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCover, err)
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidCover)
	}

	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), src, bounds.Min, draw.Src)

	side := min(gray.Rect.Dx(), gray.Rect.Dy())
	left := (gray.Rect.Dx() - side) / 2
	top := (gray.Rect.Dy() - side) / 2
	crop := image.Rect(left, top, left+side, top+side)

	scaled := image.NewGray(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, crop, draw.Src, nil)

	return Dither(scaled), nil
}

// Dither reduces img to black and white with Floyd-Steinberg error diffusion.
func Dither(img image.Image) *image.Gray {
	bounds := img.Bounds()
	pal := image.NewPaletted(bounds, monochrome)
	draw.FloydSteinberg.Draw(pal, bounds, img, bounds.Min)

	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if pal.ColorIndexAt(x, y) == 1 {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// XBMSize is the packed length of a w x h bitmap.
func XBMSize(w, h int) int {
	return (w*h + 7) / 8
}

// PackXBM packs a bitmap row-major, least significant bit first: pixel
// i = y*w + x lands in bit i&7 of byte i>>3. Non-zero pixels are set.
func PackXBM(img *image.Gray) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]byte, XBMSize(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.GrayAt(img.Rect.Min.X+x, img.Rect.Min.Y+y).Y != 0 {
				idx := y*w + x
				out[idx>>3] |= 1 << (idx & 7)
			}
		}
	}
	return out
}

// UnpackXBM is the inverse of PackXBM.
func UnpackXBM(data []byte, w, h int) (*image.Gray, error) {
	if w <= 0 || h <= 0 || len(data) != XBMSize(w, h) {
		return nil, fmt.Errorf("%w: %d bytes is not a %dx%d bitmap", ErrInvalidCover, len(data), w, h)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for idx := 0; idx < w*h; idx++ {
		if data[idx>>3]&(1<<(idx&7)) != 0 {
			img.Pix[(idx/w)*img.Stride+idx%w] = 255
		}
	}
	return img, nil
}

// isEncodedImage reports whether payload starts with a known image signature.
func isEncodedImage(payload []byte) bool {
	switch {
	case bytes.HasPrefix(payload, []byte{0xFF, 0xD8, 0xFF}): // JPEG
		return true
	case bytes.HasPrefix(payload, []byte("\x89PNG\r\n\x1a\n")):
		return true
	case bytes.HasPrefix(payload, []byte("BM")):
		return true
	case len(payload) >= 12 && bytes.Equal(payload[:4], []byte("RIFF")) && bytes.Equal(payload[8:12], []byte("WEBP")):
		return true
	}
	return false
}
